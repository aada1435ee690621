package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"solbridge/internal/models"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientLedger  = errors.New("insufficient custodial balance")
	ErrAddressAlreadyBound = errors.New("wallet address already registered")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserAndRail(userID, rail string) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.Where("user_id = ? AND rail = ?", userID, rail).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) GetByAddress(address string) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.Where("address = ?", address).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// RegisterSelfCustody binds a self-custody address to a user, creating the
// rail row on first registration and re-pointing it on subsequent ones.
func (r *WalletRepository) RegisterSelfCustody(userID, address string) (*models.Wallet, error) {
	if other, err := r.GetByAddress(address); err == nil && other.UserID != userID {
		return nil, ErrAddressAlreadyBound
	}
	w, err := r.GetByUserAndRail(userID, models.RailSelfCustody)
	if errors.Is(err, ErrWalletNotFound) {
		w = &models.Wallet{
			UserID:       userID,
			Rail:         models.RailSelfCustody,
			Address:      address,
			DailyResetAt: utcMidnight(time.Now()),
		}
		if err := r.db.Create(w).Error; err != nil {
			return nil, err
		}
		return w, nil
	}
	if err != nil {
		return nil, err
	}
	w.Address = address
	if err := r.db.Model(w).Update("address", address).Error; err != nil {
		return nil, err
	}
	return w, nil
}

// GetOrCreateCustodial returns the user's custodial rail row, creating an
// empty one on first touch. address is the house pool address.
func (r *WalletRepository) GetOrCreateCustodial(userID, address string) (*models.Wallet, error) {
	w, err := r.GetByUserAndRail(userID, models.RailCustodial)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}
	w = &models.Wallet{
		UserID:       userID,
		Rail:         models.RailCustodial,
		Address:      address,
		DailyResetAt: utcMidnight(time.Now()),
	}
	if err := r.db.Create(w).Error; err != nil {
		return nil, err
	}
	return w, nil
}

// UpdateCachedBalance refreshes the advisory cached balance after a network
// sync. Never consulted for authorization.
func (r *WalletRepository) UpdateCachedBalance(w *models.Wallet, lamports int64) error {
	now := time.Now().UTC()
	w.BalanceLamports = lamports
	w.LastSyncedAt = &now
	return r.db.Model(w).Updates(map[string]interface{}{
		"balance_lamports": lamports,
		"last_synced_at":   now,
	}).Error
}

// CreditCustodial adds to the user's custodial bookkeeping balance.
func (r *WalletRepository) CreditCustodial(userID, poolAddress string, lamports int64) error {
	w, err := r.GetOrCreateCustodial(userID, poolAddress)
	if err != nil {
		return err
	}
	w.BalanceLamports += lamports
	return r.db.Model(w).Update("balance_lamports", w.BalanceLamports).Error
}

// DebitCustodial removes from the user's custodial bookkeeping balance,
// failing when it does not cover the amount.
func (r *WalletRepository) DebitCustodial(userID string, lamports int64) error {
	w, err := r.GetByUserAndRail(userID, models.RailCustodial)
	if err != nil {
		return err
	}
	if w.BalanceLamports < lamports {
		return ErrInsufficientLedger
	}
	w.BalanceLamports -= lamports
	return r.db.Model(w).Update("balance_lamports", w.BalanceLamports).Error
}

// BumpDailyUsed advances the advisory per-wallet daily counters after a
// completed withdrawal-kind movement. The limit tracker never reads these;
// they exist for display and operator queries.
func (r *WalletRepository) BumpDailyUsed(w *models.Wallet, lamports int64) error {
	now := time.Now().UTC()
	anchor := utcMidnight(now)
	if w.DailyResetAt.Before(anchor) {
		w.DailyUsedLamports = 0
		w.DailyResetAt = anchor
	}
	w.DailyUsedLamports += lamports
	w.LastUsedAt = &now
	return r.db.Model(w).Updates(map[string]interface{}{
		"daily_used_lamports": w.DailyUsedLamports,
		"daily_reset_at":      w.DailyResetAt,
		"last_used_at":        now,
	}).Error
}

func utcMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
