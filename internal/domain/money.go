package domain

import (
	"fmt"
	"math"
)

// Price bounds and share payout, all in cents.
const (
	MinPrice       int64 = 1
	MaxPrice       int64 = 99
	PayoutPerShare int64 = 100

	MinQuantity int64 = 1
	MaxQuantity int64 = 10_000

	// MaxAmount bounds a single monetary input: 10 billion dollars.
	MaxAmount int64 = 1_000_000_000_000
)

// DollarsToCents converts a float64 dollar amount to int64 cents.
// It rejects inputs with more than 2 decimal places and magnitudes above
// MaxAmount cents.
func DollarsToCents(f float64) (int64, error) {
	if math.IsNaN(f) || math.Abs(f) > float64(MaxAmount)/100 {
		return 0, fmt.Errorf("monetary values must be within %s", FormatCents(MaxAmount))
	}
	// A third decimal digit survives rounding at x1000 but not at x100.
	scaled := math.Round(f * 1000)
	if math.Mod(scaled, 10) != 0 {
		return 0, fmt.Errorf("monetary values must have at most 2 decimal places")
	}

	cents := math.Round(f * 100)
	return int64(cents), nil
}

// CentsToDollars converts an int64 cents value to a float64 dollar amount.
func CentsToDollars(c int64) float64 {
	return float64(c) / 100.0
}

// FormatCents renders a cents value as a fixed two-decimal string.
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// ComplementPrice returns the price on the other side of the book that nets
// against p into one full share.
func ComplementPrice(p int64) int64 {
	return PayoutPerShare - p
}

// Cost is the amount reserved for quantity shares at the order's own-side
// price.
func Cost(price, quantity int64) int64 {
	return price * quantity
}
