package service

import (
	"fmt"
	"log"
)

// LimitDecision is the daily-cap verdict for a proposed amount. All values
// are lamports.
type LimitDecision struct {
	Allowed   bool
	Used      int64
	Remaining int64
	Cap       int64
}

// LimitService computes a user's used and remaining transfer capacity for
// the current UTC calendar day. The cap is shared across every withdrawal
// kind and rail, so splitting a withdrawal across rails gains nothing.
type LimitService struct {
	ledger LedgerStore
	cap    int64
}

func NewLimitService(ledger LedgerStore, capLamports int64) *LimitService {
	return &LimitService{ledger: ledger, cap: capLamports}
}

// Check is a pure read: enforcement happens in the executors at write time.
// When the aggregate query fails the tracker fails closed: a denied
// decision is returned alongside the error, never a silent allow.
func (s *LimitService) Check(userID string, proposedLamports int64) (LimitDecision, error) {
	used, err := s.ledger.SumCompletedWithdrawalsToday(userID)
	if err != nil {
		log.Printf("[Limits] aggregate query failed for user=%s, failing closed: %v", userID, err)
		return LimitDecision{Allowed: false, Cap: s.cap}, fmt.Errorf("daily limit query: %w", err)
	}
	remaining := s.cap - used
	if remaining < 0 {
		remaining = 0
	}
	return LimitDecision{
		Allowed:   used+proposedLamports <= s.cap,
		Used:      used,
		Remaining: remaining,
		Cap:       s.cap,
	}, nil
}
