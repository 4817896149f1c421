package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/google/uuid"
)

type tradeRepo struct{ tx *memTx }

func (r tradeRepo) Create(_ context.Context, t *domain.Trade) error {
	s := r.tx.s
	if t.TradeID == "" {
		t.TradeID = uuid.New().String()
	}
	if _, ok := s.trades[t.TradeID]; ok {
		return fmt.Errorf("memory: trade %s already exists", t.TradeID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	cp := *t
	s.trades[t.TradeID] = &cp
	s.marketTrades[t.MarketID] = append(s.marketTrades[t.MarketID], t.TradeID)
	s.orderTrades[t.YesOrderID] = append(s.orderTrades[t.YesOrderID], t.TradeID)
	s.orderTrades[t.NoOrderID] = append(s.orderTrades[t.NoOrderID], t.TradeID)

	r.tx.onRollback(func() {
		delete(s.trades, cp.TradeID)
		s.marketTrades[cp.MarketID] = dropLast(s.marketTrades[cp.MarketID])
		s.orderTrades[cp.YesOrderID] = dropLast(s.orderTrades[cp.YesOrderID])
		s.orderTrades[cp.NoOrderID] = dropLast(s.orderTrades[cp.NoOrderID])
	})
	r.tx.record(domain.ChangeInsert, domain.TableTrades, tradeRow(&cp), nil)
	return nil
}

// ListByMarket returns up to limit trades, newest first.
func (r tradeRepo) ListByMarket(_ context.Context, marketID string, limit int) ([]*domain.Trade, error) {
	s := r.tx.s
	ids := s.marketTrades[marketID]
	out := make([]*domain.Trade, 0)
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *s.trades[ids[i]]
		out = append(out, &cp)
	}
	return out, nil
}

// ListByOrder returns the order's trades in execution order.
func (r tradeRepo) ListByOrder(_ context.Context, orderID string) ([]*domain.Trade, error) {
	s := r.tx.s
	ids := s.orderTrades[orderID]
	out := make([]*domain.Trade, 0, len(ids))
	for _, id := range ids {
		cp := *s.trades[id]
		out = append(out, &cp)
	}
	return out, nil
}

func dropLast(ids []string) []string {
	if len(ids) == 0 {
		return ids
	}
	return ids[:len(ids)-1]
}
