package domain

import "time"

// EventKind names a notification trigger point.
type EventKind string

const (
	EventOrderPlaced          EventKind = "order_placed"
	EventOrderFilled          EventKind = "order_filled"
	EventOrderPartiallyFilled EventKind = "order_partially_filled"
)

// EventKinds lists every kind a webhook may subscribe to.
var EventKinds = []EventKind{
	EventOrderPlaced,
	EventOrderFilled,
	EventOrderPartiallyFilled,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	for _, e := range EventKinds {
		if e == k {
			return true
		}
	}
	return false
}

// FillEventFor maps an order status to the fill event it triggers, if any.
func FillEventFor(s OrderStatus) (EventKind, bool) {
	switch s {
	case OrderStatusFilled:
		return EventOrderFilled, true
	case OrderStatusPartial:
		return EventOrderPartiallyFilled, true
	}
	return "", false
}

// Webhook is a user's subscription to one event kind. There is at most one
// per (UserID, Event).
type Webhook struct {
	WebhookID string
	UserID    string
	Event     EventKind
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
