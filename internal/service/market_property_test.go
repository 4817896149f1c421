package service

import (
	"testing"

	"github.com/efreitasn/predictx/internal/domain"
	"pgregory.net/rapid"
)

// TestProperty_BookAggregationPreservesQuantity checks that the book levels
// of one side account for every resting share exactly once, best first.
func TestProperty_BookAggregationPreservesQuantity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 50).Draw(t, "n")
		orders := make([]*domain.Order, n)
		var wantYes int64
		for i := range orders {
			side := rapid.SampledFrom([]domain.Side{domain.SideYes, domain.SideNo}).Draw(t, "side")
			qty := rapid.Int64Range(1, 100).Draw(t, "qty")
			filled := rapid.Int64Range(0, qty-1).Draw(t, "filled")
			orders[i] = &domain.Order{
				Side:           side,
				Price:          rapid.Int64Range(domain.MinPrice, domain.MaxPrice).Draw(t, "price"),
				Quantity:       qty,
				FilledQuantity: filled,
			}
			if side == domain.SideYes {
				wantYes += qty - filled
			}
		}

		levels := aggregate(orders, domain.SideYes)
		var got int64
		for i, l := range levels {
			got += l.TotalQuantity
			if l.OrderCount == 0 || l.TotalQuantity <= 0 {
				t.Fatalf("empty level %+v", l)
			}
			if i > 0 && levels[i-1].Price <= l.Price {
				t.Fatalf("levels not strictly descending at %d", i)
			}
		}
		if got != wantYes {
			t.Fatalf("aggregated %d, want %d", got, wantYes)
		}
	})
}
