package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/metrics"
)

// SelfTradePolicy decides whether an order may match resting orders of
// the same user.
type SelfTradePolicy string

const (
	SelfTradeSkip  SelfTradePolicy = "skip"
	SelfTradeAllow SelfTradePolicy = "allow"
)

// Valid reports whether p is a known policy.
func (p SelfTradePolicy) Valid() bool {
	return p == SelfTradeSkip || p == SelfTradeAllow
}

// Fill is one planned match of Quantity shares against a resting order.
type Fill struct {
	Resting  *domain.Order
	Quantity int64
}

// Matcher selects which resting orders an incoming order fills against.
// Matching only happens at the single price that complements the incoming
// price; candidates are consumed oldest first.
type Matcher struct {
	selfTrade SelfTradePolicy
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(selfTrade SelfTradePolicy, m *metrics.Metrics, logger *slog.Logger) *Matcher {
	if !selfTrade.Valid() {
		selfTrade = SelfTradeSkip
	}
	return &Matcher{
		selfTrade: selfTrade,
		metrics:   m,
		logger:    logger.With(slog.String("component", "matcher")),
	}
}

// Match loads the resting orders opposite incoming at the complementary
// price and plans fills against them.
func (m *Matcher) Match(ctx context.Context, orders domain.OrderRepository, incoming *domain.Order) ([]Fill, error) {
	candidates, err := orders.FindOpposingAtPrice(ctx, incoming.MarketID,
		incoming.Side.Opposite(), domain.ComplementPrice(incoming.Price))
	if err != nil {
		return nil, fmt.Errorf("find opposing orders: %w", err)
	}
	return m.Plan(incoming, candidates), nil
}

// Plan walks candidates in the given order and fills the incoming
// remainder. The sum of fills never exceeds the incoming remainder nor any
// candidate's remainder.
func (m *Matcher) Plan(incoming *domain.Order, candidates []*domain.Order) []Fill {
	remaining := incoming.Remaining()
	target := domain.ComplementPrice(incoming.Price)
	var fills []Fill

	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		if c.Remaining() <= 0 || c.Side != incoming.Side.Opposite() ||
			c.Price != target || c.MarketID != incoming.MarketID {
			m.anomaly(incoming, c)
			continue
		}
		if m.selfTrade == SelfTradeSkip && c.UserID == incoming.UserID {
			m.metrics.SelfTradeSkipped()
			m.logger.Debug("self trade skipped",
				slog.String("order_id", incoming.OrderID),
				slog.String("resting_order_id", c.OrderID),
				slog.String("user_id", c.UserID),
			)
			continue
		}

		qty := min(remaining, c.Remaining())
		fills = append(fills, Fill{Resting: c, Quantity: qty})
		remaining -= qty
	}
	return fills
}

func (m *Matcher) anomaly(incoming, c *domain.Order) {
	m.metrics.MatchingAnomaly()
	m.logger.Error("resting candidate skipped",
		slog.String("error", domain.ErrMatchingAnomaly.Error()),
		slog.String("order_id", incoming.OrderID),
		slog.String("resting_order_id", c.OrderID),
		slog.String("resting_status", string(c.Status)),
		slog.Int64("resting_remaining", c.Remaining()),
	)
}
