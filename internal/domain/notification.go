package domain

import "time"

// Notification is a fire-and-forget message for one user about one order.
type Notification struct {
	Kind      EventKind
	UserID    string
	Order     *Order
	Trades    []*Trade
	CreatedAt time.Time
}
