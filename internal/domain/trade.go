package domain

import "time"

// TradeStatus is the settlement state of a trade.
type TradeStatus string

const TradeStatusSettled TradeStatus = "settled"

// Trade records one match between a YES order and a NO order. Price is the
// YES-side price; the NO leg paid its complement.
type Trade struct {
	TradeID    string
	MarketID   string
	YesOrderID string
	NoOrderID  string
	YesUserID  string
	NoUserID   string
	Quantity   int64
	Price      int64
	Status     TradeStatus
	CreatedAt  time.Time
}

// YesCost is what the YES participant paid for the matched shares.
func (t *Trade) YesCost() int64 {
	return Cost(t.Price, t.Quantity)
}

// NoCost is what the NO participant paid for the matched shares.
func (t *Trade) NoCost() int64 {
	return Cost(ComplementPrice(t.Price), t.Quantity)
}

// Involves reports whether orderID is either leg of the trade.
func (t *Trade) Involves(orderID string) bool {
	return t.YesOrderID == orderID || t.NoOrderID == orderID
}
