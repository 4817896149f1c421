package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrMarketNotFound      = errors.New("market_not_found")
	ErrMarketAlreadyExists = errors.New("market_already_exists")
	ErrMarketNotActive     = errors.New("market_not_active")
	ErrOrderNotFound       = errors.New("order_not_found")
	ErrBalanceNotFound     = errors.New("balance_not_found")
	ErrWebhookNotFound     = errors.New("webhook_not_found")
	ErrInsufficientFunds   = errors.New("insufficient_funds")
	ErrPersistence         = errors.New("persistence_error")
	ErrMatchingAnomaly     = errors.New("matching_anomaly")
	ErrLedgerInvariant     = errors.New("ledger_invariant_violated")
	ErrLockTimeout         = errors.New("lock_timeout")
)

// ValidationError represents a request validation failure. Field names the
// offending input when the failure is tied to one.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InsufficientFundsError reports a reservation that the user's available
// balance cannot cover. Amounts are in cents.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s",
		FormatCents(e.Required), FormatCents(e.Available))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// PersistenceError wraps a storage failure with the step that produced it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrPersistence and the underlying cause to errors.Is.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
