package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/engine"
	"github.com/efreitasn/predictx/internal/ledger"
	"github.com/efreitasn/predictx/internal/metrics"
	"github.com/efreitasn/predictx/internal/store/memory"
)

const testDefaultBalance = 10000

type services struct {
	store    *memory.Store
	orders   *OrderService
	balances *BalanceService
	markets  *MarketService
	webhooks *WebhookService
}

func newServices(t *testing.T) *services {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New(logger)
	m := metrics.New()
	led := ledger.New()
	coord := engine.NewCoordinator(st, led, engine.NewMatcher(engine.SelfTradeSkip, m, logger),
		engine.NewLocalLocker(), nil, testDefaultBalance, m, logger)

	s := &services{
		store:    st,
		orders:   NewOrderService(coord, st),
		balances: NewBalanceService(st, led, testDefaultBalance),
		markets:  NewMarketService(st),
		webhooks: NewWebhookService(st.Webhooks()),
	}
	if _, err := s.markets.Create(context.Background(), "m1", "Will it rain?"); err != nil {
		t.Fatalf("create market: %v", err)
	}
	return s
}

func (s *services) place(t *testing.T, user string, side domain.Side, qty, price int64) *engine.Placement {
	t.Helper()
	p, err := s.orders.Place(context.Background(), engine.PlaceRequest{
		UserID: user, MarketID: "m1", Side: side, Quantity: qty, Price: price,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	return p
}
