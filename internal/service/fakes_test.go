package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"solbridge/internal/models"
	"solbridge/internal/repository"
	"solbridge/pkg/chain"
)

// fakeLedger is an in-memory LedgerStore honoring the same transition rules
// as the real repository.
type fakeLedger struct {
	mu        sync.Mutex
	entries   []*models.Transaction
	nextID    uint
	sumToday  int64
	sumErr    error
	createErr error
	updateErr error

	// updateAfter, when set, fails every UpdateStatus call from that call
	// number on (1-based), letting tests target a specific write.
	updateAfter int
	updateCalls int
}

func (f *fakeLedger) Create(tx *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	tx.ID = f.nextID
	tx.CreatedAt = time.Now().UTC()
	f.entries = append(f.entries, tx)
	return nil
}

func (f *fakeLedger) GetBySignature(signature string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].Signature == signature {
			return f.entries[i], nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (f *fakeLedger) UpdateStatus(tx *models.Transaction, status, signature, metadata string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updateAfter > 0 && f.updateCalls >= f.updateAfter {
		return fmt.Errorf("status write failed")
	}
	if !models.CanTransition(tx.Status, status) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, tx.Status, status)
	}
	// Compare-and-set like the real repository: the stored row must still be
	// in the status the caller read.
	for _, e := range f.entries {
		if e.ID == tx.ID && e.Status != tx.Status {
			return fmt.Errorf("%w: entry %d left %s", repository.ErrStaleEntry, tx.ID, tx.Status)
		}
	}
	apply := func(e *models.Transaction) {
		e.Status = status
		if signature != "" {
			e.Signature = signature
		}
		if metadata != "" {
			e.Metadata = metadata
		}
	}
	apply(tx)
	// Persist by ID as the real repository does, so callers holding a copy
	// still update the stored row.
	for _, e := range f.entries {
		if e.ID == tx.ID && e != tx {
			apply(e)
		}
	}
	return nil
}

func (f *fakeLedger) SumCompletedWithdrawalsToday(userID string) (int64, error) {
	if f.sumErr != nil {
		return 0, f.sumErr
	}
	return f.sumToday, nil
}

func (f *fakeLedger) LatestPendingMatch(userID string, lamports int64, destination string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.UserID == userID && e.Lamports == lamports && e.DestinationAddress == destination && e.Status == models.TxPending {
			return e, nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (f *fakeLedger) ListByUser(userID string, limit int) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].UserID == userID {
			out = append(out, *f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) ListUnresolved(lookback time.Duration, limit int) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, e := range f.entries {
		if (e.Status == models.TxFailed || e.Status == models.TxVerificationFailed) && e.Signature != "" {
			out = append(out, *e)
		}
	}
	return out, nil
}

// entryByID lets tests re-fetch the live entry after service mutation.
func (f *fakeLedger) entryByID(id uint) *models.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// fakeWallets is an in-memory WalletStore.
type fakeWallets struct {
	mu           sync.Mutex
	selfCustody  map[string]*models.Wallet // by user
	custodial    map[string]*models.Wallet // by user
	debitErr     error
	creditErr    error
	cacheUpdates []int64
	bumps        []int64
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{
		selfCustody: make(map[string]*models.Wallet),
		custodial:   make(map[string]*models.Wallet),
	}
}

func (f *fakeWallets) GetByUserAndRail(userID, rail string) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var w *models.Wallet
	if rail == models.RailCustodial {
		w = f.custodial[userID]
	} else {
		w = f.selfCustody[userID]
	}
	if w == nil {
		return nil, repository.ErrWalletNotFound
	}
	return w, nil
}

func (f *fakeWallets) RegisterSelfCustody(userID, address string) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &models.Wallet{UserID: userID, Rail: models.RailSelfCustody, Address: address}
	f.selfCustody[userID] = w
	return w, nil
}

func (f *fakeWallets) GetOrCreateCustodial(userID, address string) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.custodial[userID]; ok {
		return w, nil
	}
	w := &models.Wallet{UserID: userID, Rail: models.RailCustodial, Address: address}
	f.custodial[userID] = w
	return w, nil
}

func (f *fakeWallets) UpdateCachedBalance(w *models.Wallet, lamports int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.BalanceLamports = lamports
	f.cacheUpdates = append(f.cacheUpdates, lamports)
	return nil
}

func (f *fakeWallets) CreditCustodial(userID, poolAddress string, lamports int64) error {
	if f.creditErr != nil {
		return f.creditErr
	}
	w, err := f.GetOrCreateCustodial(userID, poolAddress)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w.BalanceLamports += lamports
	return nil
}

func (f *fakeWallets) DebitCustodial(userID string, lamports int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.debitErr != nil {
		return f.debitErr
	}
	w := f.custodial[userID]
	if w == nil {
		return repository.ErrWalletNotFound
	}
	if w.BalanceLamports < lamports {
		return repository.ErrInsufficientLedger
	}
	w.BalanceLamports -= lamports
	return nil
}

func (f *fakeWallets) BumpDailyUsed(w *models.Wallet, lamports int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.DailyUsedLamports += lamports
	f.bumps = append(f.bumps, lamports)
	return nil
}

// fakeChain is a scriptable ChainClient.
type fakeChain struct {
	mu         sync.Mutex
	balances   map[string]int64
	poolAddr   string
	buildErr   error
	buildCalls int
	submitSig  string
	submitErr  error
	poolSig    string
	poolErr    error
	confirmErr error
	outcomes   map[string]*chain.TxOutcome
	lookupErr  error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances: make(map[string]int64),
		outcomes: make(map[string]*chain.TxOutcome),
	}
}

func (f *fakeChain) GetBalance(ctx context.Context, address string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address], nil
}

func (f *fakeChain) BuildTransfer(ctx context.Context, source, destination string, lamports int64, memo string) (*chain.UnsignedTransfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buildCalls++
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &chain.UnsignedTransfer{Base64: "dW5zaWduZWQ=", Blockhash: "hash123", Memo: memo}, nil
}

func (f *fakeChain) SubmitSigned(ctx context.Context, signedBase64 string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitSig, nil
}

func (f *fakeChain) SubmitPoolTransfer(ctx context.Context, destination string, lamports int64, memo string) (string, error) {
	if f.poolErr != nil {
		return "", f.poolErr
	}
	return f.poolSig, nil
}

func (f *fakeChain) AwaitConfirmation(ctx context.Context, signature string) error {
	return f.confirmErr
}

func (f *fakeChain) LookupTransaction(ctx context.Context, signature string) (*chain.TxOutcome, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if out, ok := f.outcomes[signature]; ok {
		return out, nil
	}
	return nil, chain.ErrTxNotFound
}

func (f *fakeChain) PoolAddress() string {
	return f.poolAddr
}

// fakeNotifier records game-state events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) MovementCompleted(ctx context.Context, userID, kind string, amountSol float64, signature string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, kind)
}
