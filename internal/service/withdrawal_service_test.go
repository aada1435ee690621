package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solbridge/internal/models"
	"solbridge/pkg/chain"
)

const (
	testFeeBuffer = int64(5_000_000)
	testDailyCap  = int64(20_000_000_000)
)

type withdrawFixture struct {
	ledger   *fakeLedger
	wallets  *fakeWallets
	chain    *fakeChain
	notifier *fakeNotifier
	svc      *WithdrawalService
}

func newWithdrawFixture() *withdrawFixture {
	ledger := &fakeLedger{}
	wallets := newFakeWallets()
	chainClient := newFakeChain()
	notifier := &fakeNotifier{}
	limits := NewLimitService(ledger, testDailyCap)
	balances := NewBalanceService(chainClient, wallets, testFeeBuffer)
	svc := NewWithdrawalService(chainClient, wallets, ledger, limits, balances, NewUserLocks(), notifier)
	return &withdrawFixture{ledger: ledger, wallets: wallets, chain: chainClient, notifier: notifier, svc: svc}
}

func (f *withdrawFixture) registerWallet(userID, address string, balance int64) {
	f.wallets.selfCustody[userID] = &models.Wallet{UserID: userID, Rail: models.RailSelfCustody, Address: address, BalanceLamports: balance}
	f.chain.balances[address] = balance
}

func TestWithdrawalQuote(t *testing.T) {
	amount := chain.SolToLamports(1)

	t.Run("writes no ledger entries", func(t *testing.T) {
		f := newWithdrawFixture()
		f.registerWallet("user-1", "srcAddr", amount+testFeeBuffer)

		for i := 0; i < 3; i++ {
			q, err := f.svc.Quote(context.Background(), "user-1", "srcAddr", "destAddr", amount)
			require.NoError(t, err)
			assert.NotEmpty(t, q.UnsignedTransaction)
			assert.Equal(t, "srcAddr", q.Source)
		}
		assert.Empty(t, f.ledger.entries, "quotes must leave no trace in the ledger")
	})

	t.Run("includes an idempotency memo", func(t *testing.T) {
		f := newWithdrawFixture()
		f.registerWallet("user-1", "srcAddr", amount+testFeeBuffer)

		q, err := f.svc.Quote(context.Background(), "user-1", "srcAddr", "destAddr", amount)
		require.NoError(t, err)
		assert.Contains(t, q.Memo, "self_custody_withdrawal-user-1-")
	})

	t.Run("rejects when balance equals amount exactly", func(t *testing.T) {
		f := newWithdrawFixture()
		f.registerWallet("user-1", "srcAddr", amount)

		_, err := f.svc.Quote(context.Background(), "user-1", "srcAddr", "destAddr", amount)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("accepts when balance covers amount plus fee buffer", func(t *testing.T) {
		f := newWithdrawFixture()
		f.registerWallet("user-1", "srcAddr", amount+testFeeBuffer)

		_, err := f.svc.Quote(context.Background(), "user-1", "srcAddr", "destAddr", amount)
		assert.NoError(t, err)
	})

	t.Run("rejects over the daily cap", func(t *testing.T) {
		f := newWithdrawFixture()
		f.ledger.sumToday = chain.SolToLamports(18)
		f.registerWallet("user-1", "srcAddr", chain.SolToLamports(5))

		_, err := f.svc.Quote(context.Background(), "user-1", "srcAddr", "destAddr", chain.SolToLamports(3))
		assert.ErrorIs(t, err, ErrLimitExceeded)
	})

	t.Run("rejects a wallet address belonging to someone else", func(t *testing.T) {
		f := newWithdrawFixture()
		f.registerWallet("user-1", "srcAddr", amount+testFeeBuffer)

		_, err := f.svc.Quote(context.Background(), "user-1", "otherAddr", "destAddr", amount)
		assert.ErrorIs(t, err, ErrWalletMismatch)
	})

	t.Run("rejects when no wallet is registered", func(t *testing.T) {
		f := newWithdrawFixture()

		_, err := f.svc.Quote(context.Background(), "user-1", "", "destAddr", amount)
		assert.Error(t, err)
	})
}

func TestWithdrawalExecute(t *testing.T) {
	amount := chain.SolToLamports(1)

	t.Run("completes the entry and bumps the daily counter", func(t *testing.T) {
		f := newWithdrawFixture()
		f.registerWallet("user-1", "srcAddr", amount+testFeeBuffer)
		f.chain.submitSig = "sig123"

		receipt, err := f.svc.Execute(context.Background(), "user-1", "srcAddr", "destAddr", amount, "c2lnbmVk")
		require.NoError(t, err)
		assert.Equal(t, "sig123", receipt.Signature)
		assert.NotEmpty(t, receipt.Reference)

		require.Len(t, f.ledger.entries, 1)
		entry := f.ledger.entries[0]
		assert.Equal(t, models.TxCompleted, entry.Status)
		assert.Equal(t, models.KindSelfCustodyWithdrawal, entry.Kind)
		assert.Equal(t, "sig123", entry.Signature)
		assert.Equal(t, []int64{amount}, f.wallets.bumps)
		assert.Equal(t, []string{models.KindSelfCustodyWithdrawal}, f.notifier.events)
	})

	t.Run("confirmation timeout leaves a FAILED entry and an untouched cache", func(t *testing.T) {
		f := newWithdrawFixture()
		f.registerWallet("user-1", "srcAddr", amount+testFeeBuffer)
		f.chain.submitSig = "sig123"
		f.chain.confirmErr = chain.ErrConfirmTimeout

		_, err := f.svc.Execute(context.Background(), "user-1", "srcAddr", "destAddr", amount, "c2lnbmVk")
		assert.ErrorIs(t, err, chain.ErrConfirmTimeout)

		require.Len(t, f.ledger.entries, 1)
		entry := f.ledger.entries[0]
		assert.Equal(t, models.TxFailed, entry.Status)
		assert.Equal(t, "sig123", entry.Signature, "signature is kept so the sweep can re-check")
		assert.Contains(t, entry.Metadata, "confirm")
		assert.Empty(t, f.wallets.cacheUpdates)
		assert.Empty(t, f.wallets.bumps)
		assert.Empty(t, f.notifier.events)
	})

	t.Run("submission rejection records the failure without a signature", func(t *testing.T) {
		f := newWithdrawFixture()
		f.registerWallet("user-1", "srcAddr", amount+testFeeBuffer)
		f.chain.submitErr = assert.AnError

		_, err := f.svc.Execute(context.Background(), "user-1", "srcAddr", "destAddr", amount, "c2lnbmVk")
		assert.ErrorIs(t, err, ErrSubmissionFailed)

		require.Len(t, f.ledger.entries, 1)
		entry := f.ledger.entries[0]
		assert.Equal(t, models.TxFailed, entry.Status)
		assert.Empty(t, entry.Signature)
	})

	t.Run("revalidates the limit at execution time", func(t *testing.T) {
		f := newWithdrawFixture()
		f.registerWallet("user-1", "srcAddr", chain.SolToLamports(5))
		f.ledger.sumToday = testDailyCap

		_, err := f.svc.Execute(context.Background(), "user-1", "srcAddr", "destAddr", amount, "c2lnbmVk")
		assert.ErrorIs(t, err, ErrLimitExceeded)
		assert.Empty(t, f.ledger.entries, "rejected before acceptance, nothing recorded")
	})

	t.Run("completion write failure surfaces as a ledger inconsistency", func(t *testing.T) {
		f := newWithdrawFixture()
		f.registerWallet("user-1", "srcAddr", amount+testFeeBuffer)
		f.chain.submitSig = "sig123"
		f.ledger.updateAfter = 2 // allow PROCESSING, fail the COMPLETED write

		_, err := f.svc.Execute(context.Background(), "user-1", "srcAddr", "destAddr", amount, "c2lnbmVk")
		var inconsistency *LedgerInconsistencyError
		require.ErrorAs(t, err, &inconsistency)
		assert.Equal(t, "user-1", inconsistency.UserID)
		assert.Equal(t, "sig123", inconsistency.Signature)
	})
}
