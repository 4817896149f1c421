package memory

import (
	"context"
	"sort"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
)

type marketRepo struct{ tx *memTx }

func (r marketRepo) Create(_ context.Context, m *domain.Market) error {
	s := r.tx.s
	if _, ok := s.markets[m.MarketID]; ok {
		return domain.ErrMarketAlreadyExists
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	cp := *m
	s.markets[m.MarketID] = &cp
	r.tx.onRollback(func() { delete(s.markets, cp.MarketID) })
	r.tx.record(domain.ChangeInsert, domain.TableMarkets, marketRow(&cp), nil)
	return nil
}

func (r marketRepo) Get(_ context.Context, marketID string) (*domain.Market, error) {
	m, ok := r.tx.s.markets[marketID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	cp := *m
	return &cp, nil
}

func (r marketRepo) AddVolume(_ context.Context, marketID string, quantity int64) error {
	s := r.tx.s
	prev, ok := s.markets[marketID]
	if !ok {
		return domain.ErrMarketNotFound
	}
	next := *prev
	next.YesVolume += quantity
	next.NoVolume += quantity
	s.markets[marketID] = &next
	r.tx.onRollback(func() { s.markets[marketID] = prev })
	r.tx.record(domain.ChangeUpdate, domain.TableMarkets, marketRow(&next), marketRow(prev))
	return nil
}

func (r marketRepo) List(_ context.Context) ([]*domain.Market, error) {
	out := make([]*domain.Market, 0, len(r.tx.s.markets))
	for _, m := range r.tx.s.markets {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}
