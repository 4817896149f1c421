package domain

import "context"

// Store is the transactional persistence boundary. Every mutation of
// balances, orders, trades and markets happens inside InTx; when fn returns
// an error nothing it wrote is kept.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// InReadTx runs fn against one consistent snapshot without taking
	// row locks. fn must not write.
	InReadTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Webhooks() WebhookRepository
	ChangeSource
	Close()
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	// LockMarket serializes placements on marketID for the rest of the
	// transaction. Backends that already serialize transactions may no-op.
	LockMarket(ctx context.Context, marketID string) error
	Balances() BalanceRepository
	Orders() OrderRepository
	Trades() TradeRepository
	Markets() MarketRepository
}

// BalanceRepository persists user balances. Get locks the row for the
// remainder of the transaction where the backend supports it.
type BalanceRepository interface {
	Get(ctx context.Context, userID string) (*UserBalance, error)
	Create(ctx context.Context, b *UserBalance) error
	Update(ctx context.Context, b *UserBalance) error
	All(ctx context.Context) ([]*UserBalance, error)
}

// OrderRepository persists orders and answers matching queries.
type OrderRepository interface {
	// Create assigns OrderID (when empty), Sequence, timestamps, a zero
	// fill and the open status.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	// FindOpposingAtPrice returns resting orders on side at exactly price,
	// oldest first by (CreatedAt, Sequence).
	FindOpposingAtPrice(ctx context.Context, marketID string, side Side, price int64) ([]*Order, error)
	UpdateFill(ctx context.Context, o *Order) error
	// ListByUser returns one page of the user's orders, newest first, and
	// the total number matching the filter.
	ListByUser(ctx context.Context, userID string, f OrderFilter) ([]*Order, int, error)
	ListResting(ctx context.Context, marketID string) ([]*Order, error)
	// RestingLiabilities sums price x remaining over resting orders per user.
	RestingLiabilities(ctx context.Context) (map[string]int64, error)
	ListInconsistent(ctx context.Context) ([]*Order, error)
}

// TradeRepository persists immutable trade records.
type TradeRepository interface {
	Create(ctx context.Context, t *Trade) error
	ListByMarket(ctx context.Context, marketID string, limit int) ([]*Trade, error)
	ListByOrder(ctx context.Context, orderID string) ([]*Trade, error)
}

// MarketRepository persists markets.
type MarketRepository interface {
	Create(ctx context.Context, m *Market) error
	Get(ctx context.Context, marketID string) (*Market, error)
	AddVolume(ctx context.Context, marketID string, quantity int64) error
	List(ctx context.Context) ([]*Market, error)
}

// WebhookRepository persists webhook subscriptions outside the trading
// transaction.
type WebhookRepository interface {
	// Upsert inserts or updates the subscription keyed by (UserID, Event)
	// and reports whether a new one was created. On update w receives the
	// stored WebhookID and CreatedAt.
	Upsert(ctx context.Context, w *Webhook) (bool, error)
	Find(ctx context.Context, userID string, event EventKind) (*Webhook, error)
	ListByUser(ctx context.Context, userID string) ([]*Webhook, error)
	Delete(ctx context.Context, userID, webhookID string) error
}
