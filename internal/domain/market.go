package domain

import (
	"regexp"
	"time"
)

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusPending   MarketStatus = "pending"
	MarketStatusActive    MarketStatus = "active"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Outcome is the resolved side of a market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Market is a binary event that orders trade against. YesVolume and
// NoVolume count matched shares; each matched share holds one payout in
// escrow until resolution.
type Market struct {
	MarketID  string
	Title     string
	Status    MarketStatus
	YesVolume int64
	NoVolume  int64
	Outcome   *Outcome
	CreatedAt time.Time
}

// Escrow is the amount held by the market for matched shares.
func (m *Market) Escrow() int64 {
	return m.YesVolume * PayoutPerShare
}

// AcceptsOrders reports whether new orders may be placed on the market.
func (m *Market) AcceptsOrders() bool {
	return m.Status == MarketStatusActive
}

var marketIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidMarketID reports whether id is usable as a market identifier.
func ValidMarketID(id string) bool {
	return marketIDPattern.MatchString(id)
}
