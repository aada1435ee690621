package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solbridge/internal/models"
	"solbridge/pkg/chain"
)

type payoutFixture struct {
	ledger   *fakeLedger
	wallets  *fakeWallets
	chain    *fakeChain
	notifier *fakeNotifier
	svc      *PayoutService
}

func newPayoutFixture() *payoutFixture {
	ledger := &fakeLedger{}
	wallets := newFakeWallets()
	chainClient := newFakeChain()
	chainClient.poolAddr = "poolAddr"
	chainClient.balances["poolAddr"] = chain.SolToLamports(100)
	notifier := &fakeNotifier{}
	limits := NewLimitService(ledger, testDailyCap)
	svc := NewPayoutService(chainClient, wallets, ledger, limits, NewUserLocks(), notifier, testFeeBuffer)
	return &payoutFixture{ledger: ledger, wallets: wallets, chain: chainClient, notifier: notifier, svc: svc}
}

func (f *payoutFixture) fundCustodial(userID string, balance int64) {
	f.wallets.custodial[userID] = &models.Wallet{UserID: userID, Rail: models.RailCustodial, Address: "poolAddr", BalanceLamports: balance}
}

func TestPayout(t *testing.T) {
	amount := chain.SolToLamports(1)

	t.Run("debits the custodial balance after confirmation", func(t *testing.T) {
		f := newPayoutFixture()
		f.fundCustodial("user-1", chain.SolToLamports(5))
		f.chain.poolSig = "paysig"

		receipt, err := f.svc.Payout(context.Background(), "user-1", "destAddr", amount)
		require.NoError(t, err)
		assert.Equal(t, "paysig", receipt.Signature)
		assert.Equal(t, chain.SolToLamports(4), receipt.NewBalance)

		require.Len(t, f.ledger.entries, 1)
		entry := f.ledger.entries[0]
		assert.Equal(t, models.TxCompleted, entry.Status)
		assert.Equal(t, models.KindCustodialWithdrawal, entry.Kind)
		assert.Equal(t, "poolAddr", entry.SourceAddress)
		assert.Equal(t, chain.SolToLamports(4), f.wallets.custodial["user-1"].BalanceLamports)
		assert.Equal(t, []string{models.KindCustodialWithdrawal}, f.notifier.events)
	})

	t.Run("rejects when the custodial balance does not cover the amount", func(t *testing.T) {
		f := newPayoutFixture()
		f.fundCustodial("user-1", amount-1)

		_, err := f.svc.Payout(context.Background(), "user-1", "destAddr", amount)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Empty(t, f.ledger.entries)
	})

	t.Run("rejects when the pool cannot cover amount plus fee buffer", func(t *testing.T) {
		f := newPayoutFixture()
		f.fundCustodial("user-1", chain.SolToLamports(5))
		f.chain.balances["poolAddr"] = amount // covers the amount but not the fee

		_, err := f.svc.Payout(context.Background(), "user-1", "destAddr", amount)
		assert.ErrorIs(t, err, ErrInsufficientPool)
	})

	t.Run("rejects over the daily cap shared with the other rail", func(t *testing.T) {
		f := newPayoutFixture()
		f.fundCustodial("user-1", chain.SolToLamports(5))
		f.ledger.sumToday = chain.SolToLamports(18)

		_, err := f.svc.Payout(context.Background(), "user-1", "destAddr", chain.SolToLamports(3))
		assert.ErrorIs(t, err, ErrLimitExceeded)
	})

	t.Run("confirmation timeout leaves the custodial balance undebited", func(t *testing.T) {
		f := newPayoutFixture()
		f.fundCustodial("user-1", chain.SolToLamports(5))
		f.chain.poolSig = "paysig"
		f.chain.confirmErr = chain.ErrConfirmTimeout

		_, err := f.svc.Payout(context.Background(), "user-1", "destAddr", amount)
		assert.ErrorIs(t, err, chain.ErrConfirmTimeout)
		assert.Equal(t, chain.SolToLamports(5), f.wallets.custodial["user-1"].BalanceLamports)
		require.Len(t, f.ledger.entries, 1)
		assert.Equal(t, models.TxFailed, f.ledger.entries[0].Status)
		assert.Equal(t, "paysig", f.ledger.entries[0].Signature)
	})

	t.Run("debit failure after confirmation is a ledger inconsistency", func(t *testing.T) {
		f := newPayoutFixture()
		f.fundCustodial("user-1", chain.SolToLamports(5))
		f.chain.poolSig = "paysig"
		f.wallets.debitErr = assert.AnError

		_, err := f.svc.Payout(context.Background(), "user-1", "destAddr", amount)
		var inconsistency *LedgerInconsistencyError
		require.ErrorAs(t, err, &inconsistency)
		assert.Equal(t, "paysig", inconsistency.Signature)
	})

	t.Run("refuses to run without a configured pool", func(t *testing.T) {
		f := newPayoutFixture()
		f.chain.poolAddr = ""

		_, err := f.svc.Payout(context.Background(), "user-1", "destAddr", amount)
		assert.ErrorIs(t, err, ErrPoolNotConfigured)
	})
}
