package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/ledger"
	"github.com/efreitasn/predictx/internal/metrics"
	"github.com/efreitasn/predictx/internal/store/memory"
)

// testDefaultBalance is 100.00.
const testDefaultBalance = 10000

var errDisk = errors.New("disk full")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEngine struct {
	coord    *Coordinator
	store    *memory.Store
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

// newTestEngine creates a Coordinator over a fresh memory store with one
// active market "m1".
func newTestEngine(t *testing.T, policy SelfTradePolicy) *testEngine {
	t.Helper()
	st := memory.New(discardLogger())
	return newTestEngineOn(t, st, st, policy)
}

func newTestEngineOn(t *testing.T, mem *memory.Store, st domain.Store, policy SelfTradePolicy) *testEngine {
	t.Helper()
	m := metrics.New()
	n := &recordingNotifier{}
	coord := NewCoordinator(st, ledger.New(), NewMatcher(policy, m, discardLogger()),
		NewLocalLocker(), n, testDefaultBalance, m, discardLogger())
	e := &testEngine{coord: coord, store: mem, notifier: n, metrics: m}
	e.seedMarket(t, "m1", domain.MarketStatusActive)
	return e
}

func (e *testEngine) seedMarket(t *testing.T, id string, status domain.MarketStatus) {
	t.Helper()
	err := e.store.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Markets().Create(ctx, &domain.Market{MarketID: id, Title: id, Status: status})
	})
	if err != nil {
		t.Fatalf("seed market %s: %v", id, err)
	}
}

func (e *testEngine) place(t *testing.T, user, market string, side domain.Side, qty, price int64) *Placement {
	t.Helper()
	p, err := e.coord.Place(context.Background(), PlaceRequest{
		UserID: user, MarketID: market, Side: side, Quantity: qty, Price: price,
	})
	if err != nil {
		t.Fatalf("Place(%s %s %d@%d): %v", user, side, qty, price, err)
	}
	return p
}

func (e *testEngine) balance(t *testing.T, user string) *domain.UserBalance {
	t.Helper()
	var b *domain.UserBalance
	err := e.store.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		b, err = tx.Balances().Get(ctx, user)
		return err
	})
	if err != nil {
		t.Fatalf("balance %s: %v", user, err)
	}
	return b
}

func (e *testEngine) order(t *testing.T, id string) *domain.Order {
	t.Helper()
	var o *domain.Order
	err := e.store.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		o, err = tx.Orders().Get(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("order %s: %v", id, err)
	}
	return o
}

func (e *testEngine) market(t *testing.T, id string) *domain.Market {
	t.Helper()
	var m *domain.Market
	err := e.store.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		m, err = tx.Markets().Get(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("market %s: %v", id, err)
	}
	return m
}

func (e *testEngine) assertReconciled(t *testing.T) {
	t.Helper()
	r := NewReconciler(e.store, 0, nil, discardLogger())
	report, err := r.Check(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.OK() {
		t.Fatalf("reconcile violations: %+v", report.Violations)
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (n *recordingNotifier) Trigger(_ context.Context, note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, note)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.items))
	for i, it := range n.items {
		out[i] = it.UserID + ":" + string(it.Kind)
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = nil
}

// faultyStore wraps a memory store and fails the chosen repository call.
type faultyStore struct {
	*memory.Store
	failOrderCreate bool
	failTradeCreate bool
}

func (s *faultyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, s: s})
	})
}

type faultyTx struct {
	domain.Tx
	s *faultyStore
}

func (t *faultyTx) Orders() domain.OrderRepository {
	return &faultyOrders{OrderRepository: t.Tx.Orders(), fail: t.s.failOrderCreate}
}

func (t *faultyTx) Trades() domain.TradeRepository {
	return &faultyTrades{TradeRepository: t.Tx.Trades(), fail: t.s.failTradeCreate}
}

type faultyOrders struct {
	domain.OrderRepository
	fail bool
}

func (r *faultyOrders) Create(ctx context.Context, o *domain.Order) error {
	if r.fail {
		return errDisk
	}
	return r.OrderRepository.Create(ctx, o)
}

type faultyTrades struct {
	domain.TradeRepository
	fail bool
}

func (r *faultyTrades) Create(ctx context.Context, tr *domain.Trade) error {
	if r.fail {
		return errDisk
	}
	return r.TradeRepository.Create(ctx, tr)
}
