package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/google/uuid"
)

// restingEntry indexes a resting order by (market, side, price, seq).
// Ascending order within one (market, side, price) is FIFO. Arrival is the
// store sequence, never the wall clock, which can step backwards.
type restingEntry struct {
	MarketID string
	Side     domain.Side
	Price    int64
	Sequence int64
	OrderID  string
}

func restingLess(a, b restingEntry) bool {
	if a.MarketID != b.MarketID {
		return a.MarketID < b.MarketID
	}
	if a.Side != b.Side {
		return a.Side < b.Side
	}
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Sequence < b.Sequence
}

func entryFor(o *domain.Order) restingEntry {
	return restingEntry{
		MarketID: o.MarketID,
		Side:     o.Side,
		Price:    o.Price,
		Sequence: o.Sequence,
		OrderID:  o.OrderID,
	}
}

type orderRepo struct{ tx *memTx }

func (r orderRepo) Create(_ context.Context, o *domain.Order) error {
	s := r.tx.s
	if o.OrderID == "" {
		o.OrderID = uuid.New().String()
	}
	if _, ok := s.orders[o.OrderID]; ok {
		return fmt.Errorf("memory: order %s already exists", o.OrderID)
	}

	s.seq++
	o.Sequence = s.seq
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	o.FilledQuantity = 0
	o.Status = domain.OrderStatusOpen

	cp := *o
	s.orders[o.OrderID] = &cp
	s.userOrders[o.UserID] = append(s.userOrders[o.UserID], o.OrderID)
	s.resting.ReplaceOrInsert(entryFor(&cp))

	r.tx.onRollback(func() {
		s.seq--
		delete(s.orders, cp.OrderID)
		ids := s.userOrders[cp.UserID]
		s.userOrders[cp.UserID] = ids[:len(ids)-1]
		s.resting.Delete(entryFor(&cp))
	})
	r.tx.record(domain.ChangeInsert, domain.TableOrders, orderRow(&cp), nil)
	return nil
}

func (r orderRepo) Get(_ context.Context, orderID string) (*domain.Order, error) {
	o, ok := r.tx.s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r orderRepo) FindOpposingAtPrice(_ context.Context, marketID string, side domain.Side, price int64) ([]*domain.Order, error) {
	s := r.tx.s
	pivot := restingEntry{MarketID: marketID, Side: side, Price: price}
	var out []*domain.Order
	s.resting.AscendGreaterOrEqual(pivot, func(e restingEntry) bool {
		if e.MarketID != marketID || e.Side != side || e.Price != price {
			return false
		}
		cp := *s.orders[e.OrderID]
		out = append(out, &cp)
		return true
	})
	return out, nil
}

func (r orderRepo) UpdateFill(_ context.Context, o *domain.Order) error {
	s := r.tx.s
	prev, ok := s.orders[o.OrderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	next := *prev
	next.FilledQuantity = o.FilledQuantity
	next.Status = o.Status
	next.UpdatedAt = o.UpdatedAt
	s.orders[o.OrderID] = &next

	wasResting, isResting := prev.Resting(), next.Resting()
	if wasResting && !isResting {
		s.resting.Delete(entryFor(prev))
	} else if !wasResting && isResting {
		s.resting.ReplaceOrInsert(entryFor(&next))
	}

	r.tx.onRollback(func() {
		s.orders[prev.OrderID] = prev
		if wasResting && !isResting {
			s.resting.ReplaceOrInsert(entryFor(prev))
		} else if !wasResting && isResting {
			s.resting.Delete(entryFor(prev))
		}
	})
	r.tx.record(domain.ChangeUpdate, domain.TableOrders, orderRow(&next), orderRow(prev))
	return nil
}

func (r orderRepo) ListByUser(_ context.Context, userID string, f domain.OrderFilter) ([]*domain.Order, int, error) {
	s := r.tx.s
	ids := s.userOrders[userID]

	filtered := make([]*domain.Order, 0)
	for i := len(ids) - 1; i >= 0; i-- {
		o := s.orders[ids[i]]
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		cp := *o
		filtered = append(filtered, &cp)
	}

	total := len(filtered)
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = total
	}
	start := (page - 1) * limit
	if start >= total {
		return []*domain.Order{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

func (r orderRepo) ListResting(_ context.Context, marketID string) ([]*domain.Order, error) {
	s := r.tx.s
	out := make([]*domain.Order, 0)
	s.resting.AscendGreaterOrEqual(restingEntry{MarketID: marketID}, func(e restingEntry) bool {
		if e.MarketID != marketID {
			return false
		}
		cp := *s.orders[e.OrderID]
		out = append(out, &cp)
		return true
	})
	return out, nil
}

func (r orderRepo) RestingLiabilities(_ context.Context) (map[string]int64, error) {
	s := r.tx.s
	out := make(map[string]int64)
	s.resting.Ascend(func(e restingEntry) bool {
		o := s.orders[e.OrderID]
		out[o.UserID] += o.Liability()
		return true
	})
	return out, nil
}

func (r orderRepo) ListInconsistent(_ context.Context) ([]*domain.Order, error) {
	out := make([]*domain.Order, 0)
	for _, o := range r.tx.s.orders {
		if !o.Consistent() {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}
