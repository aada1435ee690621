package models

import (
	"time"

	"gorm.io/gorm"
)

// Rails a wallet can live on.
const (
	RailCustodial   = "CUSTODIAL"
	RailSelfCustody = "SELF_CUSTODY"
)

// Wallet is one row per (user, rail).
//
// For the SELF_CUSTODY rail BalanceLamports is a cached copy of the on-chain
// balance; it is advisory only and must never be used to approve an outbound
// transfer (the reconciler queries the network first). For the CUSTODIAL rail
// it is the bookkeeping balance the user holds inside the house pool.
type Wallet struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	UserID            string         `gorm:"size:64;not null;uniqueIndex:idx_wallets_user_rail" json:"user_id"`
	Rail              string         `gorm:"size:20;not null;uniqueIndex:idx_wallets_user_rail" json:"rail"`
	Address           string         `gorm:"size:44;index" json:"address"`
	BalanceLamports   int64          `gorm:"not null;default:0" json:"balance_lamports"`
	LastSyncedAt      *time.Time     `json:"last_synced_at"`
	DailyUsedLamports int64          `gorm:"not null;default:0" json:"daily_used_lamports"`
	DailyResetAt      time.Time      `json:"daily_reset_at"`
	LastUsedAt        *time.Time     `json:"last_used_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Wallet) TableName() string {
	return "wallets"
}
