package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/ledger"
	"github.com/efreitasn/predictx/internal/metrics"
	"github.com/efreitasn/predictx/internal/store/memory"
	"pgregory.net/rapid"
)

// Any sequence of placements keeps money conserved, locked funds equal to
// resting liabilities and every order's status consistent with its fill.
func TestProperty_PlacementsPreserveLedgerInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := memory.New(discardLogger())
		policy := rapid.SampledFrom([]SelfTradePolicy{SelfTradeSkip, SelfTradeAllow}).Draw(t, "policy")
		coord := NewCoordinator(st, ledger.New(), NewMatcher(policy, nil, discardLogger()),
			NewLocalLocker(), nil, testDefaultBalance, (*metrics.Metrics)(nil), discardLogger())

		err := st.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
			return tx.Markets().Create(ctx, &domain.Market{MarketID: "m1", Status: domain.MarketStatusActive})
		})
		if err != nil {
			t.Fatal(err)
		}

		n := rapid.IntRange(1, 40).Draw(t, "orders")
		for i := 0; i < n; i++ {
			req := PlaceRequest{
				UserID:   rapid.SampledFrom([]string{"u1", "u2", "u3", "u4"}).Draw(t, fmt.Sprintf("user%d", i)),
				MarketID: "m1",
				Side:     rapid.SampledFrom([]domain.Side{domain.SideYes, domain.SideNo}).Draw(t, fmt.Sprintf("side%d", i)),
				Price:    rapid.SampledFrom([]int64{30, 40, 50, 60, 70}).Draw(t, fmt.Sprintf("price%d", i)),
				Quantity: rapid.Int64Range(1, 60).Draw(t, fmt.Sprintf("qty%d", i)),
			}
			p, err := coord.Place(context.Background(), req)
			if errors.Is(err, domain.ErrInsufficientFunds) {
				continue
			}
			if err != nil {
				t.Fatalf("Place(%+v): %v", req, err)
			}
			if p.TotalFilled > req.Quantity {
				t.Fatalf("filled %d of %d", p.TotalFilled, req.Quantity)
			}
			for _, tr := range p.Trades {
				if tr.YesCost()+tr.NoCost() != domain.PayoutPerShare*tr.Quantity {
					t.Fatalf("trade costs %d+%d for %d shares", tr.YesCost(), tr.NoCost(), tr.Quantity)
				}
			}
		}

		report, err := NewReconciler(st, 0, nil, discardLogger()).Check(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !report.OK() {
			t.Fatalf("violations: %+v", report.Violations)
		}
	})
}
