package domain

import "time"

// UserBalance holds a user's funds in cents. Available is spendable;
// Locked is reserved against resting orders. Only the ledger mutates the
// money fields.
type UserBalance struct {
	UserID          string
	Available       int64
	Locked          int64
	TotalDeposited  int64
	TotalWithdrawn  int64
	TotalTrades     int64
	WinningTrades   int64
	TotalVolume     int64
	TotalProfitLoss int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Total is the user's available plus locked funds.
func (b *UserBalance) Total() int64 {
	return b.Available + b.Locked
}

// NetDeposits is cumulative deposits minus withdrawals.
func (b *UserBalance) NetDeposits() int64 {
	return b.TotalDeposited - b.TotalWithdrawn
}
