package service

import (
	"context"
	"fmt"
	"log"

	"solbridge/internal/models"
)

// BalanceService is the reconciler between cached wallet balances and the
// settlement network. Approval decisions always go to the network; the
// cached WalletRecord balance is refreshed as a side effect and used for
// display only.
type BalanceService struct {
	chain     ChainClient
	wallets   WalletStore
	feeBuffer int64
}

func NewBalanceService(chain ChainClient, wallets WalletStore, feeBufferLamports int64) *BalanceService {
	return &BalanceService{chain: chain, wallets: wallets, feeBuffer: feeBufferLamports}
}

// AuthoritativeBalance queries the network directly.
func (s *BalanceService) AuthoritativeBalance(ctx context.Context, address string) (int64, error) {
	return s.chain.GetBalance(ctx, address)
}

// CanCover checks balance >= lamports + fee buffer against the authoritative
// balance. The buffer keeps a transfer from being approved when fees would
// make it fail, so `balance == amount` is never enough.
func (s *BalanceService) CanCover(ctx context.Context, address string, lamports int64) (int64, error) {
	balance, err := s.chain.GetBalance(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("authoritative balance: %w", err)
	}
	if balance < lamports+s.feeBuffer {
		return balance, ErrInsufficientBalance
	}
	return balance, nil
}

// RefreshCachedBalance syncs the user's self-custody wallet row from the
// network and returns the fresh value.
func (s *BalanceService) RefreshCachedBalance(ctx context.Context, userID string) (int64, error) {
	w, err := s.wallets.GetByUserAndRail(userID, models.RailSelfCustody)
	if err != nil {
		return 0, err
	}
	return s.refreshWallet(ctx, w)
}

func (s *BalanceService) refreshWallet(ctx context.Context, w *models.Wallet) (int64, error) {
	balance, err := s.chain.GetBalance(ctx, w.Address)
	if err != nil {
		return 0, fmt.Errorf("authoritative balance: %w", err)
	}
	if err := s.wallets.UpdateCachedBalance(w, balance); err != nil {
		// Advisory cache only; a stale value never blocks a transfer.
		log.Printf("[Balance] cache refresh failed for user=%s: %v", w.UserID, err)
	}
	return balance, nil
}

// FeeBuffer exposes the configured buffer for response details.
func (s *BalanceService) FeeBuffer() int64 {
	return s.feeBuffer
}
