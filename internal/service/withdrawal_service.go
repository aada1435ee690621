package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"solbridge/internal/models"
	"solbridge/pkg/chain"
)

// WithdrawalQuote is the phase-1 artifact: an unsigned transfer the caller
// may sign or discard. No ledger state exists for it.
type WithdrawalQuote struct {
	UnsignedTransaction string
	Blockhash           string
	Memo                string
	Lamports            int64
	Source              string
	Destination         string
	Limits              LimitDecision
}

// WithdrawalReceipt is the phase-2 result after on-chain confirmation.
type WithdrawalReceipt struct {
	EntryID    uint
	Reference  string
	Signature  string
	NewBalance int64
	Limits     LimitDecision
}

// WithdrawalService coordinates the self-custody rail: the client holds the
// signing key, so withdrawing is a two-phase exchange of quote and signed
// transaction.
type WithdrawalService struct {
	chain    ChainClient
	wallets  WalletStore
	ledger   LedgerStore
	limits   *LimitService
	balances *BalanceService
	locks    *UserLocks
	notifier Notifier
}

func NewWithdrawalService(chainClient ChainClient, wallets WalletStore, ledger LedgerStore,
	limits *LimitService, balances *BalanceService, locks *UserLocks, notifier Notifier) *WithdrawalService {
	return &WithdrawalService{
		chain:    chainClient,
		wallets:  wallets,
		ledger:   ledger,
		limits:   limits,
		balances: balances,
		locks:    locks,
		notifier: notifier,
	}
}

// memoFor stamps the idempotency memo: {kind}-{userId}-{timestamp}.
func memoFor(kind, userID string) string {
	return fmt.Sprintf("%s-%s-%d", strings.ToLower(kind), userID, time.Now().UnixMilli())
}

func (s *WithdrawalService) sourceWallet(userID, walletAddress string) (*models.Wallet, error) {
	w, err := s.wallets.GetByUserAndRail(userID, models.RailSelfCustody)
	if err != nil {
		return nil, err
	}
	if walletAddress != "" && w.Address != walletAddress {
		return nil, ErrWalletMismatch
	}
	return w, nil
}

// Quote validates limit and authoritative balance, then builds and returns a
// serialized unsigned transfer. Deliberately writes nothing: a quote may be
// abandoned without cleanup.
func (s *WithdrawalService) Quote(ctx context.Context, userID, walletAddress, destination string, lamports int64) (*WithdrawalQuote, error) {
	w, err := s.sourceWallet(userID, walletAddress)
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
	unsigned, err := s.chain.BuildTransfer(ctx, w.Address, destination, lamports, memoFor(models.KindSelfCustodyWithdrawal, userID))
	if err != nil {
		return nil, fmt.Errorf("build withdrawal transaction: %w", err)
	}
	return &WithdrawalQuote{
		UnsignedTransaction: unsigned.Base64,
		Blockhash:           unsigned.Blockhash,
		Memo:                unsigned.Memo,
		Lamports:            lamports,
		Source:              w.Address,
		Destination:         destination,
		Limits:              limits,
	}, nil
}

// Execute is phase 2: accept a client-signed transaction, re-validate (state
// may have drifted since the quote), submit and confirm. Acceptance writes a
// PENDING ledger entry before submission so no attempt can vanish from the
// audit trail; failures are recorded in the ledger, not just logged.
func (s *WithdrawalService) Execute(ctx context.Context, userID, walletAddress, destination string, lamports int64, signedTxBase64 string) (*WithdrawalReceipt, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	w, err := s.sourceWallet(userID, walletAddress)
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

	entry := &models.Transaction{
		Reference:          "wd-" + uuid.NewString(),
		UserID:             userID,
		Kind:               models.KindSelfCustodyWithdrawal,
		Lamports:           lamports,
		SourceAddress:      w.Address,
		DestinationAddress: destination,
		Status:             models.TxPending,
	}
	if err := s.ledger.Create(entry); err != nil {
		return nil, fmt.Errorf("record withdrawal attempt: %w", err)
	}

	sig, err := s.chain.SubmitSigned(ctx, signedTxBase64)
	if err != nil {
		s.markFailed(entry, "", map[string]string{"error": err.Error(), "stage": "submit"})
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if err := s.ledger.UpdateStatus(entry, models.TxProcessing, sig, ""); err != nil {
		log.Printf("[Withdraw] entry %d: processing update failed: %v", entry.ID, err)
	}

	if err := s.chain.AwaitConfirmation(ctx, sig); err != nil {
		// May still land on-chain later; the reconciliation sweep re-checks
		// FAILED entries that carry a signature.
		s.markFailed(entry, sig, map[string]string{"error": err.Error(), "stage": "confirm", "signature": sig})
		if errors.Is(err, chain.ErrConfirmTimeout) {
			return nil, fmt.Errorf("withdrawal %s: %w", sig, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	if err := s.ledger.UpdateStatus(entry, models.TxCompleted, sig, ""); err != nil {
		// Funds left the wallet; surface the under-recording distinctly.
		return nil, &LedgerInconsistencyError{UserID: userID, Signature: sig, Err: err}
	}
	if err := s.wallets.BumpDailyUsed(w, lamports); err != nil {
		log.Printf("[Withdraw] entry %d: daily counter bump failed: %v", entry.ID, err)
	}
	newBalance, err := s.balances.refreshWallet(ctx, w)
	if err != nil {
		log.Printf("[Withdraw] entry %d: balance refresh failed: %v", entry.ID, err)
		newBalance = w.BalanceLamports
	}
	s.notifier.MovementCompleted(ctx, userID, models.KindSelfCustodyWithdrawal, chain.LamportsToSol(lamports), sig)

	limitsAfter, lErr := s.limits.Check(userID, 0)
	if lErr != nil {
		limitsAfter = limits
	}
	return &WithdrawalReceipt{
		EntryID:    entry.ID,
		Reference:  entry.Reference,
		Signature:  sig,
		NewBalance: newBalance,
		Limits:     limitsAfter,
	}, nil
}

func (s *WithdrawalService) markFailed(entry *models.Transaction, sig string, meta map[string]string) {
	if err := s.ledger.UpdateStatus(entry, models.TxFailed, sig, metaJSON(meta)); err != nil {
		log.Printf("[Withdraw] entry %d: failed-status write failed: %v", entry.ID, err)
	}
}
