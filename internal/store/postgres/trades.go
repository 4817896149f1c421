package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const tradeColumns = `id, market_id, yes_order_id, no_order_id, yes_user_id, no_user_id, quantity, price, status, created_at`

type tradeRepo struct{ t *pgTx }

func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	defer rows.Close()
	out := make([]*domain.Trade, 0)
	for rows.Next() {
		var t domain.Trade
		err := rows.Scan(&t.TradeID, &t.MarketID, &t.YesOrderID, &t.NoOrderID, &t.YesUserID, &t.NoUserID,
			&t.Quantity, &t.Price, &t.Status, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r tradeRepo) Create(ctx context.Context, t *domain.Trade) error {
	if t.TradeID == "" {
		t.TradeID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.t.tx.Exec(ctx, query, t.TradeID, t.MarketID, t.YesOrderID, t.NoOrderID, t.YesUserID, t.NoUserID,
		t.Quantity, t.Price, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create trade: %w", err)
	}
	return nil
}

// ListByMarket returns up to limit trades, newest first. A zero limit
// returns all of them.
func (r tradeRepo) ListByMarket(ctx context.Context, marketID string, limit int) ([]*domain.Trade, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE market_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := r.t.tx.Query(ctx, query, marketID, lim)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	out, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	return out, nil
}

func (r tradeRepo) ListByOrder(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE yes_order_id = $1 OR no_order_id = $1 ORDER BY created_at, id`
	rows, err := r.t.tx.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order trades: %w", err)
	}
	out, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order trades: %w", err)
	}
	return out, nil
}
