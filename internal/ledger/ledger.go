// Package ledger is the only code that mutates money fields on user
// balances. Every operation reads the row through the caller's
// transaction, applies the change and writes it back.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
)

// Ledger applies balance mutations.
type Ledger struct {
	now func() time.Time
}

// New creates a Ledger.
func New() *Ledger {
	return &Ledger{now: time.Now}
}

// EnsureAccount returns the user's balance, creating it funded with
// initial cents when absent. The initial funding counts as a deposit.
func (l *Ledger) EnsureAccount(ctx context.Context, balances domain.BalanceRepository, userID string, initial int64) (*domain.UserBalance, error) {
	b, err := balances.Get(ctx, userID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, domain.ErrBalanceNotFound) {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	now := l.now().UTC()
	b = &domain.UserBalance{
		UserID:         userID,
		Available:      initial,
		TotalDeposited: initial,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := balances.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create balance: %w", err)
	}
	return b, nil
}

// Reserve moves amount from available to locked. It fails with
// *domain.InsufficientFundsError without writing when available is short.
func (l *Ledger) Reserve(ctx context.Context, balances domain.BalanceRepository, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("reserve %d: %w", amount, domain.ErrLedgerInvariant)
	}
	b, err := balances.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	if b.Available < amount {
		return &domain.InsufficientFundsError{Required: amount, Available: b.Available}
	}
	b.Available -= amount
	b.Locked += amount
	return l.write(ctx, balances, b)
}

// Release moves amount from locked back to available.
func (l *Ledger) Release(ctx context.Context, balances domain.BalanceRepository, userID string, amount int64) error {
	b, err := balances.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	if amount < 0 || b.Locked < amount {
		return fmt.Errorf("release %d with locked %d: %w", amount, b.Locked, domain.ErrLedgerInvariant)
	}
	b.Locked -= amount
	b.Available += amount
	return l.write(ctx, balances, b)
}

// SettleTrade consumes each participant's locked funds for a match of
// quantity shares and updates their trading statistics. Available balances
// are never touched.
func (l *Ledger) SettleTrade(ctx context.Context, balances domain.BalanceRepository, yesUser string, yesCost int64, noUser string, noCost int64, quantity int64) error {
	if err := l.settleLeg(ctx, balances, yesUser, yesCost, quantity); err != nil {
		return fmt.Errorf("settle yes leg: %w", err)
	}
	if err := l.settleLeg(ctx, balances, noUser, noCost, quantity); err != nil {
		return fmt.Errorf("settle no leg: %w", err)
	}
	return nil
}

func (l *Ledger) settleLeg(ctx context.Context, balances domain.BalanceRepository, userID string, cost, quantity int64) error {
	b, err := balances.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	if cost < 0 || b.Locked < cost {
		return fmt.Errorf("user %s: consume %d with locked %d: %w", userID, cost, b.Locked, domain.ErrLedgerInvariant)
	}
	b.Locked -= cost
	b.TotalTrades++
	b.TotalVolume += quantity
	return l.write(ctx, balances, b)
}

// Deposit credits amount to available.
func (l *Ledger) Deposit(ctx context.Context, balances domain.BalanceRepository, userID string, amount int64) (*domain.UserBalance, error) {
	if amount <= 0 {
		return nil, &domain.ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	b, err := balances.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	if amount > math.MaxInt64-b.Available || amount > math.MaxInt64-b.TotalDeposited {
		return nil, fmt.Errorf("user %s: deposit %d overflows available %d: %w", userID, amount, b.Available, domain.ErrLedgerInvariant)
	}
	b.Available += amount
	b.TotalDeposited += amount
	if err := l.write(ctx, balances, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Withdraw debits amount from available.
func (l *Ledger) Withdraw(ctx context.Context, balances domain.BalanceRepository, userID string, amount int64) (*domain.UserBalance, error) {
	if amount <= 0 {
		return nil, &domain.ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	b, err := balances.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	if b.Available < amount {
		return nil, &domain.InsufficientFundsError{Required: amount, Available: b.Available}
	}
	b.Available -= amount
	b.TotalWithdrawn += amount
	if err := l.write(ctx, balances, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (l *Ledger) write(ctx context.Context, balances domain.BalanceRepository, b *domain.UserBalance) error {
	b.UpdatedAt = l.now().UTC()
	if err := balances.Update(ctx, b); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}
