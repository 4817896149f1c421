package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/jackc/pgx/v5"
)

const marketColumns = `id, title, status, yes_volume, no_volume, outcome, created_at`

type marketRepo struct{ t *pgTx }

func scanMarket(row scanner) (*domain.Market, error) {
	var (
		m       domain.Market
		outcome *string
	)
	if err := row.Scan(&m.MarketID, &m.Title, &m.Status, &m.YesVolume, &m.NoVolume, &outcome, &m.CreatedAt); err != nil {
		return nil, err
	}
	if outcome != nil {
		o := domain.Outcome(*outcome)
		m.Outcome = &o
	}
	return &m, nil
}

func (r marketRepo) Create(ctx context.Context, m *domain.Market) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var outcome *string
	if m.Outcome != nil {
		s := string(*m.Outcome)
		outcome = &s
	}
	const query = `
		INSERT INTO markets (` + marketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	tag, err := r.t.tx.Exec(ctx, query, m.MarketID, m.Title, m.Status, m.YesVolume, m.NoVolume, outcome, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMarketAlreadyExists
	}
	return nil
}

func (r marketRepo) Get(ctx context.Context, marketID string) (*domain.Market, error) {
	m, err := scanMarket(r.t.tx.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, marketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get market %s: %w", marketID, err)
	}
	return m, nil
}

func (r marketRepo) AddVolume(ctx context.Context, marketID string, quantity int64) error {
	const query = `UPDATE markets SET yes_volume = yes_volume + $2, no_volume = no_volume + $2 WHERE id = $1`
	tag, err := r.t.tx.Exec(ctx, query, marketID, quantity)
	if err != nil {
		return fmt.Errorf("postgres: add volume %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

func (r marketRepo) List(ctx context.Context) ([]*domain.Market, error) {
	rows, err := r.t.tx.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Market, 0)
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	return out, nil
}
