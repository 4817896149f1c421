package engine

import (
	"testing"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func resting(id, user string, side domain.Side, price, qty, filled int64) *domain.Order {
	return &domain.Order{
		OrderID:        id,
		UserID:         user,
		MarketID:       "m1",
		Side:           side,
		Price:          price,
		Quantity:       qty,
		FilledQuantity: filled,
		Status:         domain.StatusFor(filled, qty),
	}
}

func TestPlan_FillsOldestFirst(t *testing.T) {
	m := NewMatcher(SelfTradeSkip, nil, discardLogger())
	incoming := resting("in", "taker", domain.SideYes, 40, 80, 0)
	candidates := []*domain.Order{
		resting("r1", "a", domain.SideNo, 60, 30, 10),
		resting("r2", "b", domain.SideNo, 60, 50, 0),
		resting("r3", "c", domain.SideNo, 60, 50, 0),
	}

	fills := m.Plan(incoming, candidates)
	if len(fills) != 3 {
		t.Fatalf("fills = %d, want 3", len(fills))
	}
	want := []struct {
		id  string
		qty int64
	}{{"r1", 20}, {"r2", 50}, {"r3", 10}}
	for i, w := range want {
		if fills[i].Resting.OrderID != w.id || fills[i].Quantity != w.qty {
			t.Errorf("fill %d = %s/%d, want %s/%d", i, fills[i].Resting.OrderID, fills[i].Quantity, w.id, w.qty)
		}
	}
}

func TestPlan_StopsWhenIncomingExhausted(t *testing.T) {
	m := NewMatcher(SelfTradeSkip, nil, discardLogger())
	incoming := resting("in", "taker", domain.SideNo, 70, 5, 0)
	candidates := []*domain.Order{
		resting("r1", "a", domain.SideYes, 30, 10, 0),
		resting("r2", "b", domain.SideYes, 30, 10, 0),
	}
	fills := m.Plan(incoming, candidates)
	if len(fills) != 1 || fills[0].Quantity != 5 {
		t.Fatalf("fills = %+v", fills)
	}
}

func TestPlan_SkipsAnomalies(t *testing.T) {
	reg := metrics.New()
	m := NewMatcher(SelfTradeSkip, reg, discardLogger())
	incoming := resting("in", "taker", domain.SideYes, 40, 10, 0)

	exhausted := resting("r1", "a", domain.SideNo, 60, 10, 10)
	exhausted.Status = domain.OrderStatusPartial
	wrongPrice := resting("r2", "b", domain.SideNo, 61, 10, 0)
	sameSide := resting("r3", "c", domain.SideYes, 60, 10, 0)
	good := resting("r4", "d", domain.SideNo, 60, 10, 0)

	fills := m.Plan(incoming, []*domain.Order{exhausted, wrongPrice, sameSide, good})
	if len(fills) != 1 || fills[0].Resting.OrderID != "r4" {
		t.Fatalf("fills = %+v", fills)
	}
	if got := testutil.ToFloat64(reg.MatchingAnomalies); got != 3 {
		t.Errorf("matching anomalies = %v, want 3", got)
	}
}

func TestPlan_SelfTradePolicy(t *testing.T) {
	incoming := resting("in", "u1", domain.SideYes, 40, 10, 0)
	candidates := []*domain.Order{resting("r1", "u1", domain.SideNo, 60, 10, 0)}

	if fills := NewMatcher(SelfTradeSkip, nil, discardLogger()).Plan(incoming, candidates); len(fills) != 0 {
		t.Errorf("skip policy produced %d fills", len(fills))
	}
	if fills := NewMatcher(SelfTradeAllow, nil, discardLogger()).Plan(incoming, candidates); len(fills) != 1 {
		t.Errorf("allow policy produced %d fills", len(fills))
	}
	// Unknown policies fall back to skip.
	if fills := NewMatcher("sometimes", nil, discardLogger()).Plan(incoming, candidates); len(fills) != 0 {
		t.Errorf("unknown policy produced %d fills", len(fills))
	}
}
