package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, user_id, market_id, side, quantity, price, filled_quantity, status, seq, created_at, updated_at`

type orderRepo struct{ t *pgTx }

func scanOrder(row scanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.OrderID, &o.UserID, &o.MarketID, &o.Side, &o.Quantity, &o.Price,
		&o.FilledQuantity, &o.Status, &o.Sequence, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*domain.Order, error) {
	defer rows.Close()
	out := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r orderRepo) Create(ctx context.Context, o *domain.Order) error {
	if o.OrderID == "" {
		o.OrderID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.UpdatedAt = o.CreatedAt
	o.FilledQuantity = 0
	o.Status = domain.OrderStatusOpen

	const query = `
		INSERT INTO orders (id, user_id, market_id, side, quantity, price, filled_quantity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $8)
		RETURNING seq`
	err := r.t.tx.QueryRow(ctx, query, o.OrderID, o.UserID, o.MarketID, o.Side, o.Quantity, o.Price,
		o.Status, o.CreatedAt).Scan(&o.Sequence)
	if err != nil {
		return fmt.Errorf("postgres: create order: %w", err)
	}
	return nil
}

func (r orderRepo) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := scanOrder(r.t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order %s: %w", orderID, err)
	}
	return o, nil
}

func (r orderRepo) FindOpposingAtPrice(ctx context.Context, marketID string, side domain.Side, price int64) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE market_id = $1 AND side = $2 AND price = $3 AND status IN ('open', 'partial')
		ORDER BY seq` + r.t.forUpdate()
	rows, err := r.t.tx.Query(ctx, query, marketID, side, price)
	if err != nil {
		return nil, fmt.Errorf("postgres: find opposing orders: %w", err)
	}
	out, err := collectOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: find opposing orders: %w", err)
	}
	return out, nil
}

func (r orderRepo) UpdateFill(ctx context.Context, o *domain.Order) error {
	const query = `UPDATE orders SET filled_quantity = $2, status = $3, updated_at = $4 WHERE id = $1`
	tag, err := r.t.tx.Exec(ctx, query, o.OrderID, o.FilledQuantity, o.Status, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r orderRepo) ListByUser(ctx context.Context, userID string, f domain.OrderFilter) ([]*domain.Order, int, error) {
	var status *string
	if f.Status != "" {
		s := string(f.Status)
		status = &s
	}

	var total int
	err := r.t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)`,
		userID, status,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: count orders: %w", err)
	}

	page := max(f.Page, 1)
	var limit *int
	offset := 0
	if f.Limit > 0 {
		limit = &f.Limit
		offset = (page - 1) * f.Limit
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY seq DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.t.tx.Query(ctx, query, userID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list orders: %w", err)
	}
	out, err := collectOrders(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list orders: %w", err)
	}
	return out, total, nil
}

func (r orderRepo) ListResting(ctx context.Context, marketID string) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE market_id = $1 AND status IN ('open', 'partial')
		ORDER BY side, price, seq`
	rows, err := r.t.tx.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resting orders: %w", err)
	}
	out, err := collectOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resting orders: %w", err)
	}
	return out, nil
}

func (r orderRepo) RestingLiabilities(ctx context.Context) (map[string]int64, error) {
	const query = `
		SELECT user_id, SUM(price * (quantity - filled_quantity))::bigint
		FROM orders
		WHERE status IN ('open', 'partial')
		GROUP BY user_id`
	rows, err := r.t.tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: resting liabilities: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			userID string
			sum    int64
		)
		if err := rows.Scan(&userID, &sum); err != nil {
			return nil, fmt.Errorf("postgres: scan liability: %w", err)
		}
		out[userID] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: resting liabilities: %w", err)
	}
	return out, nil
}

// ListInconsistent returns orders whose fill and status disagree, mirroring
// domain.Order.Consistent.
func (r orderRepo) ListInconsistent(ctx context.Context) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE filled_quantity < 0
		   OR filled_quantity > quantity
		   OR (status = 'open' AND filled_quantity <> 0)
		   OR (status = 'partial' AND (filled_quantity = 0 OR filled_quantity = quantity))
		   OR (status = 'filled' AND filled_quantity <> quantity)
		ORDER BY seq`
	rows, err := r.t.tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list inconsistent orders: %w", err)
	}
	out, err := collectOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list inconsistent orders: %w", err)
	}
	return out, nil
}
