package engine

import (
	"fmt"
	"testing"

	"github.com/efreitasn/predictx/internal/domain"
	"pgregory.net/rapid"
)

// Fills never exceed the incoming remainder or any candidate's remainder,
// and they follow candidate order.
func TestProperty_PlanNeverOverMatches(t *testing.T) {
	m := NewMatcher(SelfTradeSkip, nil, discardLogger())

	rapid.Check(t, func(t *rapid.T) {
		price := rapid.Int64Range(domain.MinPrice, domain.MaxPrice).Draw(t, "price")
		qty := rapid.Int64Range(1, 500).Draw(t, "qty")
		incoming := resting("in", "taker", domain.SideYes, price, qty, 0)

		n := rapid.IntRange(0, 20).Draw(t, "candidates")
		candidates := make([]*domain.Order, n)
		for i := range candidates {
			cq := rapid.Int64Range(1, 200).Draw(t, fmt.Sprintf("cq%d", i))
			cf := rapid.Int64Range(0, cq).Draw(t, fmt.Sprintf("cf%d", i))
			user := rapid.SampledFrom([]string{"taker", "a", "b"}).Draw(t, fmt.Sprintf("user%d", i))
			candidates[i] = resting(fmt.Sprintf("r%d", i), user, domain.SideNo, domain.ComplementPrice(price), cq, cf)
		}

		fills := m.Plan(incoming, candidates)

		var total int64
		last := -1
		for _, f := range fills {
			if f.Quantity <= 0 {
				t.Fatalf("non-positive fill %d", f.Quantity)
			}
			if f.Quantity > f.Resting.Remaining() {
				t.Fatalf("fill %d exceeds remaining %d", f.Quantity, f.Resting.Remaining())
			}
			if f.Resting.UserID == "taker" {
				t.Fatalf("self trade planned against %s", f.Resting.OrderID)
			}
			var idx int
			fmt.Sscanf(f.Resting.OrderID, "r%d", &idx)
			if idx <= last {
				t.Fatalf("fills out of order: %d after %d", idx, last)
			}
			last = idx
			total += f.Quantity
		}
		if total > qty {
			t.Fatalf("total fill %d exceeds incoming %d", total, qty)
		}

		// Every eligible candidate skipped while quantity remained would be a
		// FIFO violation.
		var available int64
		for _, c := range candidates {
			if c.UserID != "taker" {
				available += c.Remaining()
			}
		}
		if want := min(qty, available); total != want {
			t.Fatalf("total fill %d, want %d", total, want)
		}
	})
}
