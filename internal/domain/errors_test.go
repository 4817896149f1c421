package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "price", Message: "price must be between 1 and 99"}
	if err.Error() != "price must be between 1 and 99" {
		t.Errorf("Error() = %q, want %q", err.Error(), "price must be between 1 and 99")
	}
}

func TestInsufficientFundsError_IsSentinel(t *testing.T) {
	var err error = &InsufficientFundsError{Required: 4000, Available: 1000}
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatal("expected errors.Is(err, ErrInsufficientFunds)")
	}
	want := "insufficient funds: required 40.00, available 10.00"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := fmt.Errorf("reserve: %w", err)
	var ife *InsufficientFundsError
	if !errors.As(wrapped, &ife) {
		t.Fatal("expected errors.As to find InsufficientFundsError")
	}
	if ife.Required != 4000 || ife.Available != 1000 {
		t.Errorf("got required=%d available=%d", ife.Required, ife.Available)
	}
}

func TestPersistenceError_UnwrapsBoth(t *testing.T) {
	cause := errors.New("connection reset")
	err := &PersistenceError{Op: "create order", Err: cause}

	if !errors.Is(err, ErrPersistence) {
		t.Error("expected errors.Is(err, ErrPersistence)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}
	if err.Error() != "create order: connection reset" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrMarketNotFound,
		ErrMarketAlreadyExists,
		ErrMarketNotActive,
		ErrOrderNotFound,
		ErrBalanceNotFound,
		ErrWebhookNotFound,
		ErrInsufficientFunds,
		ErrPersistence,
		ErrMatchingAnomaly,
		ErrLedgerInvariant,
		ErrLockTimeout,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
