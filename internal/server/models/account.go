package models

import "time"

// Account holds a subject's point balance. The balance is mutated only
// through ledger operations and never goes negative.
type Account struct {
	ID        int64
	Balance   int64
	CreatedAt time.Time
}
