package notify

import (
	"time"

	"github.com/efreitasn/predictx/internal/domain"
)

// Payload is the JSON body delivered for a notification.
type Payload struct {
	Event      string         `json:"event"`
	UserID     string         `json:"userId"`
	OccurredAt string         `json:"occurredAt"`
	Order      *OrderPayload  `json:"order,omitempty"`
	Trades     []TradePayload `json:"trades"`
}

type OrderPayload struct {
	OrderID        string `json:"orderId"`
	MarketID       string `json:"marketId"`
	Side           string `json:"side"`
	Price          int64  `json:"price"`
	Quantity       int64  `json:"quantity"`
	FilledQuantity int64  `json:"filledQuantity"`
	Status         string `json:"status"`
}

type TradePayload struct {
	TradeID    string `json:"tradeId"`
	YesOrderID string `json:"yesOrderId"`
	NoOrderID  string `json:"noOrderId"`
	Price      int64  `json:"price"`
	Quantity   int64  `json:"quantity"`
	ExecutedAt string `json:"executedAt"`
}

const timeLayout = "2006-01-02T15:04:05Z"

// NewPayload converts a notification into its wire form.
func NewPayload(n domain.Notification) Payload {
	p := Payload{
		Event:      string(n.Kind),
		UserID:     n.UserID,
		OccurredAt: n.CreatedAt.UTC().Format(timeLayout),
		Trades:     make([]TradePayload, 0, len(n.Trades)),
	}
	if n.CreatedAt.IsZero() {
		p.OccurredAt = time.Now().UTC().Format(timeLayout)
	}
	if o := n.Order; o != nil {
		p.Order = &OrderPayload{
			OrderID:        o.OrderID,
			MarketID:       o.MarketID,
			Side:           string(o.Side),
			Price:          o.Price,
			Quantity:       o.Quantity,
			FilledQuantity: o.FilledQuantity,
			Status:         string(o.Status),
		}
	}
	for _, t := range n.Trades {
		p.Trades = append(p.Trades, TradePayload{
			TradeID:    t.TradeID,
			YesOrderID: t.YesOrderID,
			NoOrderID:  t.NoOrderID,
			Price:      t.Price,
			Quantity:   t.Quantity,
			ExecutedAt: t.CreatedAt.UTC().Format(timeLayout),
		})
	}
	return p
}
