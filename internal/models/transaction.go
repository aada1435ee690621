package models

import (
	"time"

	"gorm.io/gorm"
)

// Transaction kinds. Withdrawal-type kinds all draw from the shared daily cap.
const (
	KindCustodialWithdrawal   = "CUSTODIAL_WITHDRAWAL"
	KindSelfCustodyWithdrawal = "SELF_CUSTODY_WITHDRAWAL"
	KindRailTransfer          = "RAIL_TRANSFER"
	KindDeposit               = "DEPOSIT"
)

// WithdrawalKinds are the kinds metered against the daily cap.
var WithdrawalKinds = []string{KindCustodialWithdrawal, KindSelfCustodyWithdrawal, KindRailTransfer}

// Transaction statuses.
const (
	TxPending            = "PENDING"
	TxProcessing         = "PROCESSING"
	TxCompleted          = "COMPLETED"
	TxFailed             = "FAILED"
	TxVerificationFailed = "VERIFICATION_FAILED"
	TxCancelled          = "CANCELLED"
)

// allowedTransitions encodes the status state machine. Terminal states never
// go back to a non-terminal one; FAILED and VERIFICATION_FAILED may still be
// healed to COMPLETED when reconciliation finds the transaction landed
// on-chain after all.
var allowedTransitions = map[string][]string{
	TxPending:            {TxProcessing, TxCompleted, TxFailed, TxVerificationFailed, TxCancelled},
	TxProcessing:         {TxCompleted, TxFailed, TxVerificationFailed},
	TxFailed:             {TxCompleted},
	TxVerificationFailed: {TxCompleted},
	TxCompleted:          {},
	TxCancelled:          {},
}

// CanTransition reports whether a ledger entry may move from one status to
// another.
func CanTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status accepts no further ordinary progress.
func IsTerminal(status string) bool {
	switch status {
	case TxCompleted, TxFailed, TxVerificationFailed, TxCancelled:
		return true
	}
	return false
}

// IsWithdrawalKind reports whether a kind is metered against the daily cap.
func IsWithdrawalKind(kind string) bool {
	for _, k := range WithdrawalKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Transaction is the ledger entry for one attempted value movement. Entries
// are the auditable record of all money movement: they are created when an
// attempt is accepted (never at quote time), updated as the on-chain outcome
// resolves, and soft-deleted at most (never removed).
type Transaction struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Reference          string         `gorm:"size:64;uniqueIndex" json:"reference"`
	UserID             string         `gorm:"size:64;not null;index:idx_tx_user_status_day,priority:1" json:"user_id"`
	Kind               string         `gorm:"size:30;not null;index" json:"kind"`
	Lamports           int64          `gorm:"not null" json:"lamports"`
	SourceAddress      string         `gorm:"size:44" json:"source_address,omitempty"`
	DestinationAddress string         `gorm:"size:44" json:"destination_address,omitempty"`
	Signature          string         `gorm:"size:88;index" json:"signature,omitempty"`
	Status             string         `gorm:"size:20;not null;index:idx_tx_user_status_day,priority:2" json:"status"`
	Metadata           string         `gorm:"type:text" json:"metadata,omitempty"` // JSON: memo, blockhash, error detail
	CreatedAt          time.Time      `gorm:"index:idx_tx_user_status_day,priority:3" json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}
