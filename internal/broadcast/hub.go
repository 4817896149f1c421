// Package broadcast fans committed row changes out to subscribers such as
// WebSocket clients.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity when none is given.
const DefaultBuffer = 256

// Tables lists the tables a subscriber may filter on.
var Tables = []string{domain.TableMarkets, domain.TableOrders, domain.TableTrades, domain.TableUserBalances}

// KnownTable reports whether name is one of Tables.
func KnownTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}

// Subscription receives the change events of the tables it was created for.
// C is closed on Unsubscribe or when the hub stops.
type Subscription struct {
	C      <-chan domain.ChangeEvent
	c      chan domain.ChangeEvent
	tables map[string]bool
}

func (s *Subscription) wants(table string) bool {
	return len(s.tables) == 0 || s.tables[table]
}

// Hub is a publish/subscribe registry for change events. Publish never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	closed  bool
	buffer  int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHub creates a Hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:    make(map[*Subscription]struct{}),
		buffer:  buffer,
		metrics: m,
		logger:  logger.With(slog.String("component", "broadcast")),
	}
}

// Subscribe registers a subscriber for the given tables, or for every
// table when none are given. On a stopped hub the returned channel is
// already closed.
func (h *Hub) Subscribe(tables ...string) *Subscription {
	c := make(chan domain.ChangeEvent, h.buffer)
	sub := &Subscription{C: c, c: c, tables: make(map[string]bool, len(tables))}
	for _, t := range tables {
		sub.tables[t] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(c)
		return sub
	}
	h.subs[sub] = struct{}{}
	h.metrics.SetSubscribers(len(h.subs))
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.c)
	h.metrics.SetSubscribers(len(h.subs))
}

// Publish delivers ev to every subscriber of its table.
func (h *Hub) Publish(ev domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !sub.wants(ev.Table) {
			continue
		}
		select {
		case sub.c <- ev:
		default:
			h.metrics.BroadcastDrop()
			h.logger.Warn("dropping change for slow subscriber",
				slog.String("table", ev.Table),
				slog.String("operation", string(ev.Operation)),
			)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Run publishes every event from source until ctx is done, then closes all
// subscriptions. It returns the error source.Listen ended with, if any.
func (h *Hub) Run(ctx context.Context, source domain.ChangeSource) error {
	events := make(chan domain.ChangeEvent, h.buffer)
	listenErr := make(chan error, 1)
	go func() { listenErr <- source.Listen(ctx, events) }()

	defer h.stop()
	for {
		select {
		case <-ctx.Done():
			return <-listenErr
		case err := <-listenErr:
			return err
		case ev := <-events:
			h.Publish(ev)
		}
	}
}

func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		close(sub.c)
		delete(h.subs, sub)
	}
	h.closed = true
	h.metrics.SetSubscribers(0)
	h.logger.Info("broadcast hub stopped")
}
