package domain

import (
	"fmt"
	"time"
)

// Side is the outcome an order buys exposure to.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Valid reports whether s is one of the two tradable sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the side that nets against s.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusPartial, OrderStatusFilled, OrderStatusCancelled:
		return true
	}
	return false
}

// StatusFor derives the status of a non-cancelled order from its fill.
func StatusFor(filled, quantity int64) OrderStatus {
	switch {
	case filled <= 0:
		return OrderStatusOpen
	case filled >= quantity:
		return OrderStatusFilled
	default:
		return OrderStatusPartial
	}
}

// Order is a user's instruction to buy Quantity shares of Side at Price
// cents per share. Sequence is assigned by the store on creation and breaks
// CreatedAt ties between resting orders.
type Order struct {
	OrderID        string
	UserID         string
	MarketID       string
	Side           Side
	Quantity       int64
	Price          int64 // cents per share, own side
	FilledQuantity int64
	Status         OrderStatus
	Sequence       int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining is the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity
}

// Resting reports whether the order can still be matched.
func (o *Order) Resting() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartial
}

// Cost is the amount reserved when the order was placed.
func (o *Order) Cost() int64 {
	return Cost(o.Price, o.Quantity)
}

// Liability is the amount still reserved against the unfilled remainder.
func (o *Order) Liability() int64 {
	if !o.Resting() {
		return 0
	}
	return Cost(o.Price, o.Remaining())
}

// YesPrice expresses the order's price on the YES leg.
func (o *Order) YesPrice() int64 {
	if o.Side == SideYes {
		return o.Price
	}
	return ComplementPrice(o.Price)
}

// ApplyFill adds n to the filled quantity and recomputes the status.
func (o *Order) ApplyFill(n int64, at time.Time) error {
	if n <= 0 || n > o.Remaining() {
		return fmt.Errorf("order %s: fill %d with remaining %d: %w",
			o.OrderID, n, o.Remaining(), ErrMatchingAnomaly)
	}
	o.FilledQuantity += n
	o.Status = StatusFor(o.FilledQuantity, o.Quantity)
	o.UpdatedAt = at
	return nil
}

// Consistent reports whether the fill counters agree with the status.
func (o *Order) Consistent() bool {
	if o.FilledQuantity < 0 || o.FilledQuantity > o.Quantity {
		return false
	}
	if o.Status == OrderStatusCancelled {
		return true
	}
	return o.Status == StatusFor(o.FilledQuantity, o.Quantity)
}

// OrderFilter narrows order listings. Page is 1-based.
type OrderFilter struct {
	Status OrderStatus
	Page   int
	Limit  int
}
