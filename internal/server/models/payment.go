package models

import (
	"database/sql"
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentRecord is append-only evidence of a payment. Completed rows are the
// sole source of entitlement: premium status is always derived from them,
// never from a mutable flag.
type PaymentRecord struct {
	ID          int64
	AccountID   int64
	ExternalRef string
	Package     string
	Amount      int64
	Status      PaymentStatus
	CreatedAt   time.Time
	CompletedAt sql.NullTime
}

// Charge is an incoming payment claim from the payment provider, validated
// against the price catalog before it may touch the store.
type Charge struct {
	AccountID   int64
	ExternalRef string
	Package     string
	Amount      int64
}
