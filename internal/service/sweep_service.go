package service

import (
	"context"
	"errors"
	"log"
	"time"

	"solbridge/internal/models"
	"solbridge/internal/repository"
	"solbridge/pkg/chain"
)

// SweepService periodically re-checks unresolved ledger entries against the
// network. A submission can time out locally and still land on-chain; those
// entries sit in FAILED or VERIFICATION_FAILED with a signature, and the
// sweep heals the ones the network proves successful.
type SweepService struct {
	chain    ChainClient
	wallets  WalletStore
	ledger   LedgerStore
	notifier Notifier
	locks    *UserLocks
	lookback time.Duration
}

func NewSweepService(chainClient ChainClient, wallets WalletStore, ledger LedgerStore,
	notifier Notifier, locks *UserLocks, lookback time.Duration) *SweepService {
	return &SweepService{
		chain:    chainClient,
		wallets:  wallets,
		ledger:   ledger,
		notifier: notifier,
		locks:    locks,
		lookback: lookback,
	}
}

// Run executes one sweep pass. Wired to a cron schedule in main.
func (s *SweepService) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	entries, err := s.ledger.ListUnresolved(s.lookback, 100)
	if err != nil {
		log.Printf("[Sweep] listing unresolved entries failed: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	log.Printf("[Sweep] re-checking %d unresolved entries", len(entries))
	healed := 0
	for i := range entries {
		if s.resolve(ctx, &entries[i]) {
			healed++
		}
	}
	if healed > 0 {
		log.Printf("[Sweep] healed %d entries to COMPLETED", healed)
	}
}

// resolve re-checks one entry; returns true when it was healed. It runs
// under the user's lock, and the status write is a compare-and-set: a
// confirm that healed the entry after the sweep listed it wins the race and
// keeps its side effects, the sweep applies nothing.
func (s *SweepService) resolve(ctx context.Context, entry *models.Transaction) bool {
	unlock := s.locks.Lock(entry.UserID)
	defer unlock()

	outcome, err := s.chain.LookupTransaction(ctx, entry.Signature)
	if err != nil || !outcome.Found || outcome.Failed {
		// Still unproven or definitively failed on-chain; leave as recorded.
		return false
	}
	if err := s.ledger.UpdateStatus(entry, models.TxCompleted, "", metaJSON(map[string]string{
		"healed_by": "sweep",
		"signature": entry.Signature,
	})); err != nil {
		if errors.Is(err, repository.ErrStaleEntry) {
			return false
		}
		log.Printf("[Sweep] entry %d: heal update failed: %v", entry.ID, err)
		return false
	}

	// The movement really happened, so its bookkeeping must follow.
	switch entry.Kind {
	case models.KindRailTransfer:
		if err := s.wallets.CreditCustodial(entry.UserID, s.chain.PoolAddress(), entry.Lamports); err != nil {
			log.Printf("[Sweep] CRITICAL: healed transfer %s but custodial credit failed: %v", entry.Signature, err)
		}
	case models.KindCustodialWithdrawal:
		if err := s.wallets.DebitCustodial(entry.UserID, entry.Lamports); err != nil {
			log.Printf("[Sweep] CRITICAL: healed payout %s but custodial debit failed: %v", entry.Signature, err)
		}
	}
	if models.IsWithdrawalKind(entry.Kind) {
		bumpDailyCounters(s.wallets, entry.UserID, entry.Kind, entry.Lamports)
	}
	s.notifier.MovementCompleted(ctx, entry.UserID, entry.Kind, chain.LamportsToSol(entry.Lamports), entry.Signature)
	return true
}
