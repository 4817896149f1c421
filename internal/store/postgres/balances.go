package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/jackc/pgx/v5"
)

const balanceColumns = `user_id, available_balance, locked_balance, total_deposited, total_withdrawn,
	total_trades, winning_trades, total_volume, total_profit_loss, created_at, updated_at`

type balanceRepo struct{ t *pgTx }

func scanBalance(row scanner) (*domain.UserBalance, error) {
	var b domain.UserBalance
	err := row.Scan(&b.UserID, &b.Available, &b.Locked, &b.TotalDeposited, &b.TotalWithdrawn,
		&b.TotalTrades, &b.WinningTrades, &b.TotalVolume, &b.TotalProfitLoss, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r balanceRepo) Get(ctx context.Context, userID string) (*domain.UserBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM user_balances WHERE user_id = $1` + r.t.forUpdate()
	b, err := scanBalance(r.t.tx.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get balance %s: %w", userID, err)
	}
	return b, nil
}

func (r balanceRepo) Create(ctx context.Context, b *domain.UserBalance) error {
	const query = `
		INSERT INTO user_balances (` + balanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.t.tx.Exec(ctx, query, b.UserID, b.Available, b.Locked, b.TotalDeposited, b.TotalWithdrawn,
		b.TotalTrades, b.WinningTrades, b.TotalVolume, b.TotalProfitLoss, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create balance %s: %w", b.UserID, err)
	}
	return nil
}

func (r balanceRepo) Update(ctx context.Context, b *domain.UserBalance) error {
	const query = `
		UPDATE user_balances SET
			available_balance = $2, locked_balance = $3, total_deposited = $4, total_withdrawn = $5,
			total_trades = $6, winning_trades = $7, total_volume = $8, total_profit_loss = $9,
			updated_at = $10
		WHERE user_id = $1`
	tag, err := r.t.tx.Exec(ctx, query, b.UserID, b.Available, b.Locked, b.TotalDeposited, b.TotalWithdrawn,
		b.TotalTrades, b.WinningTrades, b.TotalVolume, b.TotalProfitLoss, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update balance %s: %w", b.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBalanceNotFound
	}
	return nil
}

func (r balanceRepo) All(ctx context.Context) ([]*domain.UserBalance, error) {
	rows, err := r.t.tx.Query(ctx, `SELECT `+balanceColumns+` FROM user_balances ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.UserBalance, 0)
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list balances: %w", err)
	}
	return out, nil
}
