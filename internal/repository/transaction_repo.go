package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"solbridge/internal/models"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidTransition is returned when a status update would violate the
	// ledger state machine (e.g. re-opening a terminal entry).
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleEntry is returned when the row's status changed between the
	// caller reading it and writing the transition. Whoever moved it first
	// owns the side effects.
	ErrStaleEntry = errors.New("ledger entry changed concurrently")
)

// TransactionRepository is the ledger store: the append-oriented, auditable
// record of every attempted value movement and the sole input to the daily
// limit aggregate.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(tx *models.Transaction) error {
	return r.db.Create(tx).Error
}

func (r *TransactionRepository) GetByID(id uint) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.First(&tx, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) GetBySignature(signature string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("signature = ?", signature).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateStatus moves an entry through the state machine, refusing any
// transition models.CanTransition does not allow. Optional signature and
// metadata are stamped in the same update. The write is a compare-and-set on
// the caller's status: a concurrent transition (confirm vs sweep racing on
// the same entry) affects zero rows and surfaces as ErrStaleEntry instead of
// re-applying the move.
func (r *TransactionRepository) UpdateStatus(tx *models.Transaction, status, signature, metadata string) error {
	if !models.CanTransition(tx.Status, status) {
		return fmt.Errorf("%w: %s -> %s (entry %d)", ErrInvalidTransition, tx.Status, status, tx.ID)
	}
	updates := map[string]interface{}{"status": status}
	if signature != "" {
		updates["signature"] = signature
	}
	if metadata != "" {
		updates["metadata"] = metadata
	}
	res := r.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", tx.ID, tx.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: entry %d left %s", ErrStaleEntry, tx.ID, tx.Status)
	}
	tx.Status = status
	if signature != "" {
		tx.Signature = signature
	}
	if metadata != "" {
		tx.Metadata = metadata
	}
	return nil
}

// SumCompletedWithdrawalsToday computes the daily limit window: completed
// withdrawal-kind lamports for the current UTC calendar day. The window is a
// calendar day, not a rolling 24h, so a single range query suffices.
func (r *TransactionRepository) SumCompletedWithdrawalsToday(userID string) (int64, error) {
	dayStart := utcMidnight(time.Now())
	dayEnd := dayStart.Add(24 * time.Hour)
	var total int64
	err := r.db.Model(&models.Transaction{}).
		Where("user_id = ? AND status = ? AND kind IN ? AND created_at >= ? AND created_at < ?",
			userID, models.TxCompleted, models.WithdrawalKinds, dayStart, dayEnd).
		Select("COALESCE(SUM(lamports), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// LatestPendingMatch finds the most recent PENDING entry matching a
// client-submitted transaction by user, amount and destination. Used by the
// confirmation service to attach an on-chain outcome to its ledger entry.
func (r *TransactionRepository) LatestPendingMatch(userID string, lamports int64, destination string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("user_id = ? AND lamports = ? AND destination_address = ? AND status = ?",
		userID, lamports, destination, models.TxPending).
		Order("created_at DESC").
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListByUser returns a user's most recent ledger entries.
func (r *TransactionRepository) ListByUser(userID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txs []models.Transaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// ListUnresolved returns FAILED / VERIFICATION_FAILED entries updated within
// the lookback window that carry a signature worth re-checking on-chain.
func (r *TransactionRepository) ListUnresolved(lookback time.Duration, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := time.Now().UTC().Add(-lookback)
	var txs []models.Transaction
	err := r.db.Where("status IN ? AND signature <> '' AND updated_at >= ?",
		[]string{models.TxFailed, models.TxVerificationFailed}, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}
