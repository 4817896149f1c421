// Package service implements the use cases behind the HTTP API on top of
// the engine and the store.
package service

import (
	"context"
	"fmt"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/engine"
)

// Pagination bounds for order listings.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// OrderDetail is an order together with the trades it took part in.
type OrderDetail struct {
	Order  *domain.Order
	Trades []*domain.Trade
}

// OrderService handles order placement and retrieval.
type OrderService struct {
	coord *engine.Coordinator
	store domain.Store
}

// NewOrderService creates a new OrderService.
func NewOrderService(coord *engine.Coordinator, store domain.Store) *OrderService {
	return &OrderService{coord: coord, store: store}
}

// Place submits an order through the settlement coordinator.
func (s *OrderService) Place(ctx context.Context, req engine.PlaceRequest) (*engine.Placement, error) {
	return s.coord.Place(ctx, req)
}

// Get returns an order and its trades. Orders belonging to another user
// are reported as not found.
func (s *OrderService) Get(ctx context.Context, userID, orderID string) (*OrderDetail, error) {
	var d OrderDetail
	err := s.store.InReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return domain.ErrOrderNotFound
		}
		trades, err := tx.Trades().ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		d = OrderDetail{Order: o, Trades: trades}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListOrders returns a page of the user's orders, newest first, with the
// total count matching the status filter.
func (s *OrderService) ListOrders(ctx context.Context, userID string, status domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, &domain.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("unknown status %q: must be one of open, partial, filled, cancelled", status),
		}
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{Field: "page", Message: "page must be >= 1"}
	}
	if limit < 1 || limit > MaxPageLimit {
		return nil, 0, &domain.ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("limit must be between 1 and %d", MaxPageLimit),
		}
	}

	var (
		orders []*domain.Order
		total  int
	)
	err := s.store.InReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		orders, total, err = tx.Orders().ListByUser(ctx, userID, domain.OrderFilter{Status: status, Page: page, Limit: limit})
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
