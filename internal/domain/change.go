package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ChangeOp is the kind of row mutation a ChangeEvent describes.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
)

// Table names used in change events.
const (
	TableMarkets      = "markets"
	TableOrders       = "orders"
	TableTrades       = "trades"
	TableUserBalances = "user_balances"
)

// ChangeEvent is a committed row change. New and Old hold the row as JSON
// with column names as keys; either may be empty depending on Operation.
type ChangeEvent struct {
	Operation ChangeOp        `json:"operation"`
	Table     string          `json:"table"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ChangeSource streams committed row changes into out until ctx is done or
// the source fails.
type ChangeSource interface {
	Listen(ctx context.Context, out chan<- ChangeEvent) error
}
