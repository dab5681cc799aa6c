// Package common defines shared constants and sentinel errors used across
// the engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrTransientStore marks store failures that are safe to retry with
	// backoff. It is never swallowed silently.
	ErrTransientStore = errors.New("transient store failure")

	// Ledger errors.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")

	// Payment validation errors.
	ErrUnknownPackage   = errors.New("unknown package")
	ErrAmountMismatch   = errors.New("amount mismatch")
	ErrDuplicatePayment = errors.New("duplicate payment")

	// Notification delivery errors.
	ErrSupersedeFailed = errors.New("supersede failed")
	ErrDeliveryFailed  = errors.New("delivery failed")

	// Queue errors.
	ErrJobNotClaimed = errors.New("job not claimed")
)
