package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"solbridge/internal/models"
	"solbridge/pkg/chain"
)

// ConfirmResult reports what the reconciliation run decided.
type ConfirmResult struct {
	Confirmed       bool
	DatabaseUpdated bool
	EntryID         uint
	Status          string
}

// ConfirmService independently verifies a client-submitted transaction on
// the settlement network and converges the ledger to the on-chain truth.
// It is the entry point for auto-sign flows, where the client sends the
// signed transaction to the network itself and only afterwards asks the
// server to finalize bookkeeping.
type ConfirmService struct {
	chain    ChainClient
	wallets  WalletStore
	ledger   LedgerStore
	balances *BalanceService
	locks    *UserLocks
	notifier Notifier
}

func NewConfirmService(chainClient ChainClient, wallets WalletStore, ledger LedgerStore,
	balances *BalanceService, locks *UserLocks, notifier Notifier) *ConfirmService {
	return &ConfirmService{
		chain:    chainClient,
		wallets:  wallets,
		ledger:   ledger,
		balances: balances,
		locks:    locks,
		notifier: notifier,
	}
}

// inferKind classifies a client-submitted movement by its destination: into
// the pool is a rail transfer, into the user's own registered wallet is a
// deposit, anything else is a self-custody withdrawal.
func (s *ConfirmService) inferKind(userID, destination string) string {
	if pool := s.chain.PoolAddress(); pool != "" && destination == pool {
		return models.KindRailTransfer
	}
	if w, err := s.wallets.GetByUserAndRail(userID, models.RailSelfCustody); err == nil && w.Address == destination {
		return models.KindDeposit
	}
	return models.KindSelfCustodyWithdrawal
}

// Confirm looks the signature up on the network and finalizes ledger state.
// Idempotent per signature: a second call finds the COMPLETED entry and
// changes nothing. When no matching PENDING entry survives (lost to an
// earlier write failure), a new terminal entry is inserted rather than
// erroring, so the ledger heals toward the true on-chain state.
func (s *ConfirmService) Confirm(ctx context.Context, userID, signature, destination string, lamports int64) (*ConfirmResult, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	existing, err := s.ledger.GetBySignature(signature)
	if err == nil && existing.Status == models.TxCompleted {
		return &ConfirmResult{Confirmed: true, DatabaseUpdated: false, EntryID: existing.ID, Status: existing.Status}, nil
	}

	outcome, lookupErr := s.chain.LookupTransaction(ctx, signature)
	verified := lookupErr == nil && outcome.Found && !outcome.Failed

	if !verified {
		reason := "signature not found on network"
		if lookupErr != nil && !errors.Is(lookupErr, chain.ErrTxNotFound) {
			// RPC trouble, not a proven absence: outcome unknown either way.
			reason = "network lookup failed: " + lookupErr.Error()
		} else if lookupErr == nil && outcome.Failed {
			reason = "transaction failed on network: " + outcome.ErrTxt
		}
		entry := existing
		if entry == nil {
			entry, _ = s.latestPending(userID, lamports, destination)
		}
		meta := metaJSON(map[string]string{"error": reason, "signature": signature})
		if entry != nil {
			if !models.CanTransition(entry.Status, models.TxVerificationFailed) {
				return &ConfirmResult{Confirmed: false, DatabaseUpdated: false, EntryID: entry.ID, Status: entry.Status}, nil
			}
			if err := s.ledger.UpdateStatus(entry, models.TxVerificationFailed, signature, meta); err != nil {
				return nil, err
			}
			return &ConfirmResult{Confirmed: false, DatabaseUpdated: true, EntryID: entry.ID, Status: models.TxVerificationFailed}, nil
		}
		entry = &models.Transaction{
			Reference:          "cf-" + uuid.NewString(),
			UserID:             userID,
			Kind:               s.inferKind(userID, destination),
			Lamports:           lamports,
			DestinationAddress: destination,
			Signature:          signature,
			Status:             models.TxVerificationFailed,
			Metadata:           meta,
		}
		if err := s.ledger.Create(entry); err != nil {
			return nil, err
		}
		return &ConfirmResult{Confirmed: false, DatabaseUpdated: true, EntryID: entry.ID, Status: models.TxVerificationFailed}, nil
	}

	kind := s.inferKind(userID, destination)
	meta := metaJSON(map[string]string{"confirmed_via": "client_submit", "signature": signature})

	entry := existing
	if entry == nil {
		entry, _ = s.latestPending(userID, lamports, destination)
	}
	if entry != nil {
		if entry.Kind != "" {
			kind = entry.Kind
		}
		if err := s.ledger.UpdateStatus(entry, models.TxCompleted, signature, meta); err != nil {
			return nil, err
		}
	} else {
		entry = &models.Transaction{
			Reference:          "cf-" + uuid.NewString(),
			UserID:             userID,
			Kind:               kind,
			Lamports:           lamports,
			DestinationAddress: destination,
			Signature:          signature,
			Status:             models.TxCompleted,
			Metadata:           metaJSON(map[string]string{"confirmed_via": "client_submit", "healed": "true", "signature": signature}),
		}
		if err := s.ledger.Create(entry); err != nil {
			return nil, err
		}
	}

	if err := s.applySideEffects(ctx, userID, kind, lamports, signature); err != nil {
		return nil, err
	}
	return &ConfirmResult{Confirmed: true, DatabaseUpdated: true, EntryID: entry.ID, Status: models.TxCompleted}, nil
}

func (s *ConfirmService) latestPending(userID string, lamports int64, destination string) (*models.Transaction, error) {
	entry, err := s.ledger.LatestPendingMatch(userID, lamports, destination)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// applySideEffects settles the bookkeeping consequences of a verified
// movement. The custodial credit/debit moves real value: when it fails after
// the entry went terminal, the failure is the critical under-recording class
// and must reach the caller, not a log line. Advisory effects (counters,
// cache refresh, notification) are logged only.
func (s *ConfirmService) applySideEffects(ctx context.Context, userID, kind string, lamports int64, signature string) error {
	switch kind {
	case models.KindRailTransfer:
		if err := s.wallets.CreditCustodial(userID, s.chain.PoolAddress(), lamports); err != nil {
			return &LedgerInconsistencyError{UserID: userID, Signature: signature, Err: fmt.Errorf("custodial credit: %w", err)}
		}
	case models.KindCustodialWithdrawal:
		// A healed pool payout: funds already left the pool, the deferred
		// debit must land now or the user can spend the balance again.
		if err := s.wallets.DebitCustodial(userID, lamports); err != nil {
			return &LedgerInconsistencyError{UserID: userID, Signature: signature, Err: fmt.Errorf("custodial debit: %w", err)}
		}
	}
	if models.IsWithdrawalKind(kind) {
		bumpDailyCounters(s.wallets, userID, kind, lamports)
	}
	if _, err := s.balances.RefreshCachedBalance(ctx, userID); err != nil {
		log.Printf("[Confirm] balance refresh failed for user %s: %v", userID, err)
	}
	s.notifier.MovementCompleted(ctx, userID, kind, chain.LamportsToSol(lamports), signature)
	return nil
}
