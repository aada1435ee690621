package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"solbridge/internal/models"
	"solbridge/pkg/chain"
)

// LedgerStore is the slice of the transaction repository the services use.
type LedgerStore interface {
	Create(tx *models.Transaction) error
	GetBySignature(signature string) (*models.Transaction, error)
	UpdateStatus(tx *models.Transaction, status, signature, metadata string) error
	SumCompletedWithdrawalsToday(userID string) (int64, error)
	LatestPendingMatch(userID string, lamports int64, destination string) (*models.Transaction, error)
	ListByUser(userID string, limit int) ([]models.Transaction, error)
	ListUnresolved(lookback time.Duration, limit int) ([]models.Transaction, error)
}

// WalletStore is the slice of the wallet repository the services use.
type WalletStore interface {
	GetByUserAndRail(userID, rail string) (*models.Wallet, error)
	RegisterSelfCustody(userID, address string) (*models.Wallet, error)
	GetOrCreateCustodial(userID, address string) (*models.Wallet, error)
	UpdateCachedBalance(w *models.Wallet, lamports int64) error
	CreditCustodial(userID, poolAddress string, lamports int64) error
	DebitCustodial(userID string, lamports int64) error
	BumpDailyUsed(w *models.Wallet, lamports int64) error
}

// ChainClient is the settlement-network surface, implemented by pkg/chain.
type ChainClient interface {
	GetBalance(ctx context.Context, address string) (int64, error)
	BuildTransfer(ctx context.Context, source, destination string, lamports int64, memo string) (*chain.UnsignedTransfer, error)
	SubmitSigned(ctx context.Context, signedBase64 string) (string, error)
	SubmitPoolTransfer(ctx context.Context, destination string, lamports int64, memo string) (string, error)
	AwaitConfirmation(ctx context.Context, signature string) error
	LookupTransaction(ctx context.Context, signature string) (*chain.TxOutcome, error)
	PoolAddress() string
}

// Notifier pushes informational events to the external game-state server.
type Notifier interface {
	MovementCompleted(ctx context.Context, userID, kind string, amountSol float64, signature string)
}

var (
	ErrWalletNotRegistered = errors.New("no self-custody wallet registered for user")
	ErrWalletMismatch      = errors.New("wallet address does not belong to user")
	ErrLimitExceeded       = errors.New("daily transfer limit exceeded")
	ErrInsufficientBalance = errors.New("balance does not cover amount plus network fee")
	ErrInsufficientPool    = errors.New("house pool balance does not cover payout")
	ErrSubmissionFailed    = errors.New("transaction submission rejected by network")
	ErrPoolNotConfigured   = errors.New("house pool is not configured")
)

// BoundsError reports an amount outside the rail's per-transaction bounds.
type BoundsError struct {
	Rail     string
	Lamports int64
	Min      int64
	Max      int64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("amount %.9f SOL outside %s bounds [%.9f, %.9f]",
		chain.LamportsToSol(e.Lamports), e.Rail,
		chain.LamportsToSol(e.Min), chain.LamportsToSol(e.Max))
}

// LedgerInconsistencyError is the critical class: funds moved on-chain but
// the bookkeeping write failed, so the ledger under-records real movement.
// Handlers must surface it distinctly, never as a generic failure.
type LedgerInconsistencyError struct {
	UserID    string
	Signature string
	Err       error
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("CRITICAL: on-chain transfer %s confirmed for user %s but ledger update failed: %v",
		e.Signature, e.UserID, e.Err)
}

func (e *LedgerInconsistencyError) Unwrap() error {
	return e.Err
}

// bumpDailyCounters advances the advisory counters on the wallet row the
// movement was metered against: the custodial row for pool payouts, the
// self-custody row for everything else. Advisory only, so failures are
// logged, never propagated.
func bumpDailyCounters(wallets WalletStore, userID, kind string, lamports int64) {
	rail := models.RailSelfCustody
	if kind == models.KindCustodialWithdrawal {
		rail = models.RailCustodial
	}
	w, err := wallets.GetByUserAndRail(userID, rail)
	if err != nil {
		return
	}
	if err := wallets.BumpDailyUsed(w, lamports); err != nil {
		log.Printf("[Ledger] daily counter bump failed for user %s: %v", userID, err)
	}
}

// metaJSON renders structured metadata for a ledger entry. Marshalling a
// string map cannot fail; the fallback keeps the entry writable regardless.
func metaJSON(kv map[string]string) string {
	b, err := json.Marshal(kv)
	if err != nil {
		return `{"error":"metadata encoding failed"}`
	}
	return string(b)
}
