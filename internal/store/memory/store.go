// Package memory implements domain.Store in process memory. Transactions
// are serialized by a store-wide mutex; every write records an undo step so
// a failed transaction leaves no trace. Committed writes are published as
// change events to listeners.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/google/btree"
)

// Store is an in-memory domain.Store.
type Store struct {
	txMu sync.Mutex

	balances   map[string]*domain.UserBalance
	orders     map[string]*domain.Order
	userOrders map[string][]string // user_id → order ids, insertion order
	resting    *btree.BTreeG[restingEntry]
	trades     map[string]*domain.Trade
	// market_id → trade ids, insertion order
	marketTrades map[string][]string
	orderTrades  map[string][]string
	markets      map[string]*domain.Market
	seq          int64

	webhooks *webhookStore

	listenMu  sync.Mutex
	listeners map[chan<- domain.ChangeEvent]struct{}
	dropped   atomic.Int64

	logger *slog.Logger
}

// New creates an empty Store.
func New(logger *slog.Logger) *Store {
	const degree = 32
	return &Store{
		balances:     make(map[string]*domain.UserBalance),
		orders:       make(map[string]*domain.Order),
		userOrders:   make(map[string][]string),
		resting:      btree.NewG[restingEntry](degree, restingLess),
		trades:       make(map[string]*domain.Trade),
		marketTrades: make(map[string][]string),
		orderTrades:  make(map[string][]string),
		markets:      make(map[string]*domain.Market),
		webhooks:     newWebhookStore(),
		listeners:    make(map[chan<- domain.ChangeEvent]struct{}),
		logger:       logger.With(slog.String("component", "memory_store")),
	}
}

// InTx runs fn with exclusive access to the store. If fn returns an error or
// panics, every write it made is undone.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	tx := &memTx{s: s}
	committed := false
	defer func() {
		if committed {
			// Under txMu so listeners see commits in order.
			s.publish(tx.changes)
		} else {
			tx.rollback()
		}
		s.txMu.Unlock()
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	committed = true
	return nil
}

// InReadTx is InTx; reads are already consistent under the store mutex.
func (s *Store) InReadTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.InTx(ctx, fn)
}

// Webhooks returns the webhook repository.
func (s *Store) Webhooks() domain.WebhookRepository {
	return s.webhooks
}

// Close is a no-op.
func (s *Store) Close() {}

// Dropped reports how many change events were discarded because a listener
// was not keeping up.
func (s *Store) Dropped() int64 {
	return s.dropped.Load()
}

// Listen forwards committed changes to out until ctx is done.
func (s *Store) Listen(ctx context.Context, out chan<- domain.ChangeEvent) error {
	s.listenMu.Lock()
	s.listeners[out] = struct{}{}
	s.listenMu.Unlock()

	<-ctx.Done()

	s.listenMu.Lock()
	delete(s.listeners, out)
	s.listenMu.Unlock()
	return nil
}

func (s *Store) publish(changes []domain.ChangeEvent) {
	if len(changes) == 0 {
		return
	}
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	for out := range s.listeners {
		for _, ev := range changes {
			select {
			case out <- ev:
			default:
				s.dropped.Add(1)
				s.logger.Warn("change event dropped",
					slog.String("table", ev.Table),
					slog.String("operation", string(ev.Operation)),
				)
			}
		}
	}
}

// memTx records undo steps and pending change events for one transaction.
type memTx struct {
	s       *Store
	undo    []func()
	changes []domain.ChangeEvent
}

func (tx *memTx) onRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.changes = nil
}

// LockMarket is a no-op: transactions are already serialized.
func (tx *memTx) LockMarket(context.Context, string) error { return nil }

func (tx *memTx) Balances() domain.BalanceRepository { return balanceRepo{tx} }
func (tx *memTx) Orders() domain.OrderRepository     { return orderRepo{tx} }
func (tx *memTx) Trades() domain.TradeRepository     { return tradeRepo{tx} }
func (tx *memTx) Markets() domain.MarketRepository   { return marketRepo{tx} }
