package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"solbridge/internal/models"
	"solbridge/pkg/chain"
)

// PayoutReceipt is the result of a completed custodial payout.
type PayoutReceipt struct {
	EntryID    uint
	Reference  string
	Signature  string
	NewBalance int64 // custodial bookkeeping balance after the debit
	Limits     LimitDecision
}

// PayoutService executes withdrawals from the house-controlled pool. The
// service holds the pool signing key, so the whole flow is single-phase:
// validate, build, sign, submit, confirm, debit.
type PayoutService struct {
	chain    ChainClient
	wallets  WalletStore
	ledger   LedgerStore
	limits   *LimitService
	locks    *UserLocks
	notifier Notifier

	feeBuffer int64
}

func NewPayoutService(chainClient ChainClient, wallets WalletStore, ledger LedgerStore,
	limits *LimitService, locks *UserLocks, notifier Notifier, feeBufferLamports int64) *PayoutService {
	return &PayoutService{
		chain:     chainClient,
		wallets:   wallets,
		ledger:    ledger,
		limits:    limits,
		locks:     locks,
		notifier:  notifier,
		feeBuffer: feeBufferLamports,
	}
}

// Payout pays out of the pool to destination. The user's custodial
// bookkeeping balance (not any blockchain balance) must cover the amount;
// the pool's on-chain balance must cover amount plus fee buffer.
func (s *PayoutService) Payout(ctx context.Context, userID, destination string, lamports int64) (*PayoutReceipt, error) {
	pool := s.chain.PoolAddress()
	if pool == "" {
		return nil, ErrPoolNotConfigured
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	custodial, err := s.wallets.GetByUserAndRail(userID, models.RailCustodial)
	if err != nil {
		return nil, err
	}
	if custodial.BalanceLamports < lamports {
		return nil, fmt.Errorf("%w: have %.4f SOL, want %.4f SOL",
			ErrInsufficientBalance, chain.LamportsToSol(custodial.BalanceLamports), chain.LamportsToSol(lamports))
	}
	limits, err := s.limits.Check(userID, lamports)
	if err != nil {
		return nil, err
	}
	if !limits.Allowed {
		return nil, fmt.Errorf("%w: used %.4f of %.4f SOL today", ErrLimitExceeded,
			chain.LamportsToSol(limits.Used), chain.LamportsToSol(limits.Cap))
	}
	poolBalance, err := s.chain.GetBalance(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("pool balance: %w", err)
	}
	if poolBalance < lamports+s.feeBuffer {
		return nil, ErrInsufficientPool
	}

	entry := &models.Transaction{
		Reference:          "po-" + uuid.NewString(),
		UserID:             userID,
		Kind:               models.KindCustodialWithdrawal,
		Lamports:           lamports,
		SourceAddress:      pool,
		DestinationAddress: destination,
		Status:             models.TxPending,
	}
	if err := s.ledger.Create(entry); err != nil {
		return nil, fmt.Errorf("record payout attempt: %w", err)
	}

	sig, err := s.chain.SubmitPoolTransfer(ctx, destination, lamports, memoFor(models.KindCustodialWithdrawal, userID))
	if err != nil {
		s.markFailed(entry, "", map[string]string{"error": err.Error(), "stage": "submit"})
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if err := s.ledger.UpdateStatus(entry, models.TxProcessing, sig, ""); err != nil {
		log.Printf("[Payout] entry %d: processing update failed: %v", entry.ID, err)
	}

	if err := s.chain.AwaitConfirmation(ctx, sig); err != nil {
		// The send may still land; the debit is deferred until reconciliation
		// proves it did, so nothing is double-spent here.
		s.markFailed(entry, sig, map[string]string{"error": err.Error(), "stage": "confirm", "signature": sig})
		return nil, fmt.Errorf("payout %s: %w", sig, err)
	}

	// Confirmed on-chain: from here every bookkeeping failure means funds
	// left the pool without being recorded as spent. That is the critical
	// class and must never be reported as a generic failure.
	if err := s.wallets.DebitCustodial(userID, lamports); err != nil {
		return nil, &LedgerInconsistencyError{UserID: userID, Signature: sig, Err: fmt.Errorf("custodial debit: %w", err)}
	}
	if err := s.ledger.UpdateStatus(entry, models.TxCompleted, sig, ""); err != nil {
		return nil, &LedgerInconsistencyError{UserID: userID, Signature: sig, Err: fmt.Errorf("ledger completion: %w", err)}
	}
	if err := s.wallets.BumpDailyUsed(custodial, lamports); err != nil {
		log.Printf("[Payout] entry %d: daily counter bump failed: %v", entry.ID, err)
	}
	s.notifier.MovementCompleted(ctx, userID, models.KindCustodialWithdrawal, chain.LamportsToSol(lamports), sig)

	limitsAfter, lErr := s.limits.Check(userID, 0)
	if lErr != nil {
		limitsAfter = limits
	}
	return &PayoutReceipt{
		EntryID:    entry.ID,
		Reference:  entry.Reference,
		Signature:  sig,
		NewBalance: custodial.BalanceLamports - lamports,
		Limits:     limitsAfter,
	}, nil
}

func (s *PayoutService) markFailed(entry *models.Transaction, sig string, meta map[string]string) {
	if err := s.ledger.UpdateStatus(entry, models.TxFailed, sig, metaJSON(meta)); err != nil {
		log.Printf("[Payout] entry %d: failed-status write failed: %v", entry.ID, err)
	}
}
