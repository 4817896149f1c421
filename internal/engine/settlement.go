package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/ledger"
	"github.com/efreitasn/predictx/internal/metrics"
)

// Notifier receives fire-and-forget notifications after a placement
// commits. Trigger must not block on delivery.
type Notifier interface {
	Trigger(ctx context.Context, n domain.Notification)
}

// PlaceRequest is an order as submitted by a user.
type PlaceRequest struct {
	UserID   string
	MarketID string
	Side     domain.Side
	Quantity int64
	Price    int64 // cents per share, own side
}

// Placement is the outcome of a committed order placement.
type Placement struct {
	Order       *domain.Order
	Trades      []*domain.Trade
	TotalFilled int64
	// Touched holds the resting orders matched, after their fills.
	Touched []*domain.Order
}

// Status is the incoming order's status after matching.
func (p *Placement) Status() domain.OrderStatus {
	return p.Order.Status
}

// ValidatePlaceRequest checks the request shape. It does not touch the store.
func ValidatePlaceRequest(req PlaceRequest) error {
	if req.UserID == "" {
		return &domain.ValidationError{Field: "userId", Message: "user id is required"}
	}
	if req.MarketID == "" {
		return &domain.ValidationError{Field: "marketId", Message: "market id is required"}
	}
	if !domain.ValidMarketID(req.MarketID) {
		return &domain.ValidationError{Field: "marketId", Message: "market id is malformed"}
	}
	if !req.Side.Valid() {
		return &domain.ValidationError{Field: "side", Message: "side must be YES or NO"}
	}
	if req.Price < domain.MinPrice || req.Price > domain.MaxPrice {
		return &domain.ValidationError{
			Field:   "price",
			Message: fmt.Sprintf("price must be between %d and %d", domain.MinPrice, domain.MaxPrice),
		}
	}
	if req.Quantity < domain.MinQuantity || req.Quantity > domain.MaxQuantity {
		return &domain.ValidationError{
			Field:   "quantity",
			Message: fmt.Sprintf("quantity must be between %d and %d", domain.MinQuantity, domain.MaxQuantity),
		}
	}
	return nil
}

// Coordinator runs an order placement end to end: validation, fund
// reservation, persistence, matching and settlement. The whole placement
// is one store transaction under the market lock; it commits entirely or
// not at all.
type Coordinator struct {
	store          domain.Store
	ledger         *ledger.Ledger
	matcher        *Matcher
	locker         MarketLocker
	notifier       Notifier
	defaultBalance int64
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
}

// NewCoordinator creates a Coordinator. defaultBalance funds accounts
// created on a user's first placement.
func NewCoordinator(
	store domain.Store,
	led *ledger.Ledger,
	matcher *Matcher,
	locker MarketLocker,
	notifier Notifier,
	defaultBalance int64,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		store:          store,
		ledger:         led,
		matcher:        matcher,
		locker:         locker,
		notifier:       notifier,
		defaultBalance: defaultBalance,
		metrics:        m,
		logger:         logger.With(slog.String("component", "settlement")),
		now:            time.Now,
	}
}

// Place validates, reserves, persists and matches the order described by
// req. Errors are *domain.ValidationError, *domain.InsufficientFundsError,
// domain.ErrMarketNotFound, domain.ErrMarketNotActive,
// domain.ErrLockTimeout or *domain.PersistenceError; none leaves state
// behind.
func (c *Coordinator) Place(ctx context.Context, req PlaceRequest) (*Placement, error) {
	if err := ValidatePlaceRequest(req); err != nil {
		c.metrics.OrderRejected(rejectReason(err))
		return nil, err
	}

	unlock, err := c.locker.Lock(ctx, req.MarketID)
	if err != nil {
		c.metrics.OrderRejected(rejectReason(err))
		return nil, fmt.Errorf("lock market: %w", err)
	}

	start := time.Now()
	var p *Placement
	err = c.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var txErr error
		p, txErr = c.place(ctx, tx, req)
		return txErr
	})
	unlock()

	if err != nil {
		err = classify(err)
		c.metrics.OrderRejected(rejectReason(err))
		c.logger.Warn("order rejected",
			slog.String("user_id", req.UserID),
			slog.String("market_id", req.MarketID),
			slog.String("side", string(req.Side)),
			slog.Int64("price", req.Price),
			slog.Int64("quantity", req.Quantity),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.metrics.ObservePlacement(time.Since(start))
	c.metrics.OrderPlaced(string(p.Order.Side), string(p.Order.Status))
	for _, t := range p.Trades {
		c.metrics.TradeExecuted(t.Quantity)
	}
	c.logger.Info("order placed",
		slog.String("order_id", p.Order.OrderID),
		slog.String("user_id", p.Order.UserID),
		slog.String("market_id", p.Order.MarketID),
		slog.String("status", string(p.Order.Status)),
		slog.Int64("filled", p.TotalFilled),
		slog.Int("trades", len(p.Trades)),
	)

	c.notify(ctx, p)
	return p, nil
}

func (c *Coordinator) place(ctx context.Context, tx domain.Tx, req PlaceRequest) (*Placement, error) {
	if err := tx.LockMarket(ctx, req.MarketID); err != nil {
		return nil, &domain.PersistenceError{Op: "lock market", Err: err}
	}

	market, err := tx.Markets().Get(ctx, req.MarketID)
	if errors.Is(err, domain.ErrMarketNotFound) {
		return nil, fmt.Errorf("market %s: %w", req.MarketID, err)
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get market", Err: err}
	}
	if !market.AcceptsOrders() {
		return nil, fmt.Errorf("market %s is %s: %w", market.MarketID, market.Status, domain.ErrMarketNotActive)
	}

	balances := tx.Balances()
	if _, err := c.ledger.EnsureAccount(ctx, balances, req.UserID, c.defaultBalance); err != nil {
		return nil, &domain.PersistenceError{Op: "ensure account", Err: err}
	}

	cost := domain.Cost(req.Price, req.Quantity)
	if err := c.ledger.Reserve(ctx, balances, req.UserID, cost); err != nil {
		var ife *domain.InsufficientFundsError
		if errors.As(err, &ife) {
			return nil, err
		}
		return nil, &domain.PersistenceError{Op: "reserve funds", Err: err}
	}

	order := &domain.Order{
		UserID:    req.UserID,
		MarketID:  req.MarketID,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		CreatedAt: c.now().UTC(),
	}
	if err := tx.Orders().Create(ctx, order); err != nil {
		if relErr := c.ledger.Release(ctx, balances, req.UserID, cost); relErr != nil {
			c.logger.Error("release after failed order create",
				slog.String("user_id", req.UserID),
				slog.String("error", relErr.Error()),
			)
		}
		return nil, &domain.PersistenceError{Op: "create order", Err: err}
	}

	fills, err := c.matcher.Match(ctx, tx.Orders(), order)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "match", Err: err}
	}

	p := &Placement{Order: order, Trades: []*domain.Trade{}, Touched: []*domain.Order{}}
	now := c.now().UTC()
	for _, f := range fills {
		trade, err := c.execute(ctx, tx, order, f, now)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "execute trade", Err: err}
		}
		p.Trades = append(p.Trades, trade)
		p.TotalFilled += f.Quantity
		p.Touched = append(p.Touched, f.Resting)
	}
	return p, nil
}

// execute records one match: the trade, both fills, the ledger settlement
// and the market volume.
func (c *Coordinator) execute(ctx context.Context, tx domain.Tx, incoming *domain.Order, f Fill, now time.Time) (*domain.Trade, error) {
	yes, no := incoming, f.Resting
	if incoming.Side == domain.SideNo {
		yes, no = f.Resting, incoming
	}

	trade := &domain.Trade{
		MarketID:   incoming.MarketID,
		YesOrderID: yes.OrderID,
		NoOrderID:  no.OrderID,
		YesUserID:  yes.UserID,
		NoUserID:   no.UserID,
		Quantity:   f.Quantity,
		Price:      incoming.YesPrice(),
		Status:     domain.TradeStatusSettled,
		CreatedAt:  now,
	}
	if err := tx.Trades().Create(ctx, trade); err != nil {
		return nil, fmt.Errorf("create trade: %w", err)
	}

	for _, o := range []*domain.Order{incoming, f.Resting} {
		if err := o.ApplyFill(f.Quantity, now); err != nil {
			return nil, err
		}
		if err := tx.Orders().UpdateFill(ctx, o); err != nil {
			return nil, fmt.Errorf("update fill %s: %w", o.OrderID, err)
		}
	}

	if err := c.ledger.SettleTrade(ctx, tx.Balances(),
		trade.YesUserID, trade.YesCost(), trade.NoUserID, trade.NoCost(), f.Quantity); err != nil {
		return nil, err
	}
	if err := tx.Markets().AddVolume(ctx, incoming.MarketID, f.Quantity); err != nil {
		return nil, fmt.Errorf("add volume: %w", err)
	}
	return trade, nil
}

// notify emits order_placed for the incoming order, then a fill event for
// the incoming order and for each resting order touched.
func (c *Coordinator) notify(ctx context.Context, p *Placement) {
	if c.notifier == nil {
		return
	}
	now := c.now().UTC()

	c.notifier.Trigger(ctx, domain.Notification{
		Kind:      domain.EventOrderPlaced,
		UserID:    p.Order.UserID,
		Order:     p.Order,
		Trades:    p.Trades,
		CreatedAt: now,
	})

	if p.TotalFilled > 0 {
		if kind, ok := domain.FillEventFor(p.Order.Status); ok {
			c.notifier.Trigger(ctx, domain.Notification{
				Kind:      kind,
				UserID:    p.Order.UserID,
				Order:     p.Order,
				Trades:    p.Trades,
				CreatedAt: now,
			})
		}
	}

	for _, resting := range p.Touched {
		kind, ok := domain.FillEventFor(resting.Status)
		if !ok {
			continue
		}
		var trades []*domain.Trade
		for _, t := range p.Trades {
			if t.Involves(resting.OrderID) {
				trades = append(trades, t)
			}
		}
		c.notifier.Trigger(ctx, domain.Notification{
			Kind:      kind,
			UserID:    resting.UserID,
			Order:     resting,
			Trades:    trades,
			CreatedAt: now,
		})
	}
}

// classify wraps store failures that escaped the placement as
// persistence errors, leaving typed domain errors untouched.
func classify(err error) error {
	var ve *domain.ValidationError
	var ife *domain.InsufficientFundsError
	switch {
	case errors.As(err, &ve),
		errors.As(err, &ife),
		errors.Is(err, domain.ErrPersistence),
		errors.Is(err, domain.ErrMarketNotFound),
		errors.Is(err, domain.ErrMarketNotActive),
		errors.Is(err, domain.ErrLockTimeout):
		return err
	}
	return &domain.PersistenceError{Op: "place order", Err: err}
}

func rejectReason(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrMarketNotFound):
		return "market_not_found"
	case errors.Is(err, domain.ErrMarketNotActive):
		return "market_not_active"
	case errors.Is(err, domain.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "persistence"
	}
}
