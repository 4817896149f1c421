package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
)

// Trade listing bounds.
const (
	DefaultTradeLimit = 50
	MaxTradeLimit     = 500
)

// BookLevel is the resting quantity at one price on one side.
type BookLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// BookResponse is a snapshot of the resting orders of a market. Levels are
// sorted best first: highest price first on both sides.
type BookResponse struct {
	MarketID   string
	Yes        []BookLevel
	No         []BookLevel
	SnapshotAt time.Time
}

// MarketService handles market creation and market data reads.
type MarketService struct {
	store domain.Store
}

// NewMarketService creates a new MarketService.
func NewMarketService(store domain.Store) *MarketService {
	return &MarketService{store: store}
}

// Create validates and creates an active market.
func (s *MarketService) Create(ctx context.Context, id, title string) (*domain.Market, error) {
	if !domain.ValidMarketID(id) {
		return nil, &domain.ValidationError{
			Field:   "id",
			Message: "id must match ^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$",
		}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = id
	}
	if len(title) > 256 {
		return nil, &domain.ValidationError{Field: "title", Message: "title must be at most 256 characters"}
	}

	m := &domain.Market{
		MarketID:  id,
		Title:     title,
		Status:    domain.MarketStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Markets().Create(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns a market by id.
func (s *MarketService) Get(ctx context.Context, id string) (*domain.Market, error) {
	var m *domain.Market
	err := s.store.InReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		m, err = tx.Markets().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// List returns every market ordered by id.
func (s *MarketService) List(ctx context.Context) ([]*domain.Market, error) {
	var out []*domain.Market
	err := s.store.InReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Markets().List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Book aggregates the market's resting orders by side and price.
func (s *MarketService) Book(ctx context.Context, id string) (*BookResponse, error) {
	var resting []*domain.Order
	err := s.store.InReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Markets().Get(ctx, id); err != nil {
			return err
		}
		var err error
		resting, err = tx.Orders().ListResting(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &BookResponse{
		MarketID:   id,
		Yes:        aggregate(resting, domain.SideYes),
		No:         aggregate(resting, domain.SideNo),
		SnapshotAt: time.Now().UTC(),
	}, nil
}

func aggregate(orders []*domain.Order, side domain.Side) []BookLevel {
	var levels [domain.MaxPrice + 1]BookLevel
	for _, o := range orders {
		if o.Side != side {
			continue
		}
		l := &levels[o.Price]
		l.Price = o.Price
		l.TotalQuantity += o.Remaining()
		l.OrderCount++
	}

	out := make([]BookLevel, 0)
	for p := domain.MaxPrice; p >= domain.MinPrice; p-- {
		if levels[p].OrderCount > 0 {
			out = append(out, levels[p])
		}
	}
	return out
}

// Trades returns up to limit of the market's most recent trades.
func (s *MarketService) Trades(ctx context.Context, id string, limit int) ([]*domain.Trade, error) {
	if limit < 1 || limit > MaxTradeLimit {
		return nil, &domain.ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("limit must be between 1 and %d", MaxTradeLimit),
		}
	}

	var trades []*domain.Trade
	err := s.store.InReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Markets().Get(ctx, id); err != nil {
			return err
		}
		var err error
		trades, err = tx.Trades().ListByMarket(ctx, id, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}
