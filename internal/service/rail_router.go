package service

import (
	"context"

	"solbridge/config"
	"solbridge/internal/models"
)

// WithdrawRequest is the router's view of a withdrawal: rail plus either a
// quote (no signed transaction) or an execution.
type WithdrawRequest struct {
	UserID        string
	Rail          string
	WalletAddress string
	Destination   string
	Lamports      int64
	SignedTx      string
}

// WithdrawOutcome is a union: exactly one field is set depending on which
// executor ran.
type WithdrawOutcome struct {
	Quote   *WithdrawalQuote
	Receipt *WithdrawalReceipt
	Payout  *PayoutReceipt
}

// TransferRequest is the router's view of a rail-to-rail move.
type TransferRequest struct {
	UserID   string
	Lamports int64
	SignedTx string
	AutoSign bool
}

type TransferOutcome struct {
	Quote   *TransferQuote
	Receipt *TransferReceipt
}

// RailRouter is pure dispatch: it resolves which executor a request belongs
// to and enforces the rail-specific amount bounds before any executor is
// invoked. Limit and balance validation live in the executors themselves so
// they run under the per-user lock.
type RailRouter struct {
	bounds      config.LimitsConfig
	withdrawals *WithdrawalService
	payouts     *PayoutService
	transfers   *TransferService
}

func NewRailRouter(bounds config.LimitsConfig, withdrawals *WithdrawalService,
	payouts *PayoutService, transfers *TransferService) *RailRouter {
	return &RailRouter{
		bounds:      bounds,
		withdrawals: withdrawals,
		payouts:     payouts,
		transfers:   transfers,
	}
}

// CheckBounds validates the per-transaction min/max for a rail.
func (r *RailRouter) CheckBounds(rail string, lamports int64) error {
	b := r.bounds.SelfCustody
	if rail == models.RailCustodial {
		b = r.bounds.Custodial
	}
	if lamports < b.MinLamports || lamports > b.MaxLamports {
		return &BoundsError{Rail: rail, Lamports: lamports, Min: b.MinLamports, Max: b.MaxLamports}
	}
	return nil
}

// Withdraw dispatches to the custodial payout executor or the two-phase
// self-custody coordinator.
func (r *RailRouter) Withdraw(ctx context.Context, req WithdrawRequest) (*WithdrawOutcome, error) {
	rail := req.Rail
	if rail == "" {
		rail = models.RailSelfCustody
	}
	if err := r.CheckBounds(rail, req.Lamports); err != nil {
		return nil, err
	}
	if rail == models.RailCustodial {
		receipt, err := r.payouts.Payout(ctx, req.UserID, req.Destination, req.Lamports)
		if err != nil {
			return nil, err
		}
		return &WithdrawOutcome{Payout: receipt}, nil
	}
	if req.SignedTx == "" {
		quote, err := r.withdrawals.Quote(ctx, req.UserID, req.WalletAddress, req.Destination, req.Lamports)
		if err != nil {
			return nil, err
		}
		return &WithdrawOutcome{Quote: quote}, nil
	}
	receipt, err := r.withdrawals.Execute(ctx, req.UserID, req.WalletAddress, req.Destination, req.Lamports, req.SignedTx)
	if err != nil {
		return nil, err
	}
	return &WithdrawOutcome{Receipt: receipt}, nil
}

// Transfer dispatches the rail-to-rail flow. Transfers are metered like
// self-custody withdrawals, so they share that rail's bounds.
func (r *RailRouter) Transfer(ctx context.Context, req TransferRequest) (*TransferOutcome, error) {
	if err := r.CheckBounds(models.RailSelfCustody, req.Lamports); err != nil {
		return nil, err
	}
	if req.SignedTx == "" {
		quote, err := r.transfers.Quote(ctx, req.UserID, req.Lamports, req.AutoSign)
		if err != nil {
			return nil, err
		}
		return &TransferOutcome{Quote: quote}, nil
	}
	receipt, err := r.transfers.Execute(ctx, req.UserID, req.Lamports, req.SignedTx)
	if err != nil {
		return nil, err
	}
	return &TransferOutcome{Receipt: receipt}, nil
}
