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

// TransferQuote is the phase-1 artifact for a rail-to-rail move
// (self-custody wallet into the house pool).
type TransferQuote struct {
	UnsignedTransaction string
	Blockhash           string
	Memo                string
	Lamports            int64
	Source              string
	Destination         string
	Limits              LimitDecision
	// Reference is set only on auto-sign quotes, where acceptance happens at
	// quote time and a PENDING entry already awaits /confirm.
	Reference string
}

// TransferReceipt is the phase-2 result.
type TransferReceipt struct {
	EntryID      uint
	Reference    string
	Signature    string
	NewCustodial int64
	Limits       LimitDecision
}

// TransferService moves value between rails: from the user's self-custody
// wallet into the house pool, crediting their custodial bookkeeping balance
// once the on-chain leg confirms. Rail-to-rail transfers draw from the same
// daily cap as withdrawals so the cap cannot be evaded by hopping rails.
type TransferService struct {
	chain    ChainClient
	wallets  WalletStore
	ledger   LedgerStore
	limits   *LimitService
	balances *BalanceService
	locks    *UserLocks
	notifier Notifier
}

func NewTransferService(chainClient ChainClient, wallets WalletStore, ledger LedgerStore,
	limits *LimitService, balances *BalanceService, locks *UserLocks, notifier Notifier) *TransferService {
	return &TransferService{
		chain:    chainClient,
		wallets:  wallets,
		ledger:   ledger,
		limits:   limits,
		balances: balances,
		locks:    locks,
		notifier: notifier,
	}
}

// Quote builds the unsigned wallet→pool transfer. With autoSign the client
// will sign and submit directly and come back through /confirm, so the
// attempt is accepted now: a PENDING ledger entry is written for the
// confirmation service to match. A plain quote writes nothing.
func (s *TransferService) Quote(ctx context.Context, userID string, lamports int64, autoSign bool) (*TransferQuote, error) {
	pool := s.chain.PoolAddress()
	if pool == "" {
		return nil, ErrPoolNotConfigured
	}
	w, err := s.wallets.GetByUserAndRail(userID, models.RailSelfCustody)
	if err != nil {
		return nil, err
	}
	limits, err := s.limits.Check(userID, lamports)
	if err != nil {
		return nil, err
	}
	if !limits.Allowed {
		return nil, fmt.Errorf("%w: used %.4f of %.4f SOL today", ErrLimitExceeded,
			chain.LamportsToSol(limits.Used), chain.LamportsToSol(limits.Cap))
	}
	if _, err := s.balances.CanCover(ctx, w.Address, lamports); err != nil {
		return nil, err
	}
	unsigned, err := s.chain.BuildTransfer(ctx, w.Address, pool, lamports, memoFor(models.KindRailTransfer, userID))
	if err != nil {
		return nil, fmt.Errorf("build transfer transaction: %w", err)
	}
	quote := &TransferQuote{
		UnsignedTransaction: unsigned.Base64,
		Blockhash:           unsigned.Blockhash,
		Memo:                unsigned.Memo,
		Lamports:            lamports,
		Source:              w.Address,
		Destination:         pool,
		Limits:              limits,
	}
	if autoSign {
		entry := &models.Transaction{
			Reference:          "tr-" + uuid.NewString(),
			UserID:             userID,
			Kind:               models.KindRailTransfer,
			Lamports:           lamports,
			SourceAddress:      w.Address,
			DestinationAddress: pool,
			Status:             models.TxPending,
			Metadata:           metaJSON(map[string]string{"memo": unsigned.Memo, "blockhash": unsigned.Blockhash, "flow": "auto_sign"}),
		}
		if err := s.ledger.Create(entry); err != nil {
			return nil, fmt.Errorf("record transfer attempt: %w", err)
		}
		quote.Reference = entry.Reference
	}
	return quote, nil
}

// Execute is phase 2 for the server-submit flow: re-validate, submit the
// signed transaction, confirm, then credit the custodial balance.
func (s *TransferService) Execute(ctx context.Context, userID string, lamports int64, signedTxBase64 string) (*TransferReceipt, error) {
	pool := s.chain.PoolAddress()
	if pool == "" {
		return nil, ErrPoolNotConfigured
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	w, err := s.wallets.GetByUserAndRail(userID, models.RailSelfCustody)
	if err != nil {
		return nil, err
	}
	limits, err := s.limits.Check(userID, lamports)
	if err != nil {
		return nil, err
	}
	if !limits.Allowed {
		return nil, fmt.Errorf("%w: used %.4f of %.4f SOL today", ErrLimitExceeded,
			chain.LamportsToSol(limits.Used), chain.LamportsToSol(limits.Cap))
	}
	if _, err := s.balances.CanCover(ctx, w.Address, lamports); err != nil {
		return nil, err
	}

	// Reuse a PENDING auto-sign entry when the client fell back to server
	// submission; otherwise this acceptance opens a fresh one.
	entry, err := s.ledger.LatestPendingMatch(userID, lamports, pool)
	if err != nil {
		entry = &models.Transaction{
			Reference:          "tr-" + uuid.NewString(),
			UserID:             userID,
			Kind:               models.KindRailTransfer,
			Lamports:           lamports,
			SourceAddress:      w.Address,
			DestinationAddress: pool,
			Status:             models.TxPending,
		}
		if err := s.ledger.Create(entry); err != nil {
			return nil, fmt.Errorf("record transfer attempt: %w", err)
		}
	}

	sig, err := s.chain.SubmitSigned(ctx, signedTxBase64)
	if err != nil {
		s.markFailed(entry, "", map[string]string{"error": err.Error(), "stage": "submit"})
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if err := s.ledger.UpdateStatus(entry, models.TxProcessing, sig, ""); err != nil {
		log.Printf("[Transfer] entry %d: processing update failed: %v", entry.ID, err)
	}

	if err := s.chain.AwaitConfirmation(ctx, sig); err != nil {
		s.markFailed(entry, sig, map[string]string{"error": err.Error(), "stage": "confirm", "signature": sig})
		if errors.Is(err, chain.ErrConfirmTimeout) {
			return nil, fmt.Errorf("transfer %s: %w", sig, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	// Funds are in the pool now; an unrecorded credit is the critical class.
	if err := s.wallets.CreditCustodial(userID, pool, lamports); err != nil {
		return nil, &LedgerInconsistencyError{UserID: userID, Signature: sig, Err: fmt.Errorf("custodial credit: %w", err)}
	}
	if err := s.ledger.UpdateStatus(entry, models.TxCompleted, sig, ""); err != nil {
		return nil, &LedgerInconsistencyError{UserID: userID, Signature: sig, Err: fmt.Errorf("ledger completion: %w", err)}
	}
	if err := s.wallets.BumpDailyUsed(w, lamports); err != nil {
		log.Printf("[Transfer] entry %d: daily counter bump failed: %v", entry.ID, err)
	}
	if _, err := s.balances.refreshWallet(ctx, w); err != nil {
		log.Printf("[Transfer] entry %d: balance refresh failed: %v", entry.ID, err)
	}
	s.notifier.MovementCompleted(ctx, userID, models.KindRailTransfer, chain.LamportsToSol(lamports), sig)

	custodial, err := s.wallets.GetByUserAndRail(userID, models.RailCustodial)
	var newCustodial int64
	if err == nil {
		newCustodial = custodial.BalanceLamports
	}
	limitsAfter, lErr := s.limits.Check(userID, 0)
	if lErr != nil {
		limitsAfter = limits
	}
	return &TransferReceipt{
		EntryID:      entry.ID,
		Reference:    entry.Reference,
		Signature:    sig,
		NewCustodial: newCustodial,
		Limits:       limitsAfter,
	}, nil
}

func (s *TransferService) markFailed(entry *models.Transaction, sig string, meta map[string]string) {
	if err := s.ledger.UpdateStatus(entry, models.TxFailed, sig, metaJSON(meta)); err != nil {
		log.Printf("[Transfer] entry %d: failed-status write failed: %v", entry.ID, err)
	}
}
