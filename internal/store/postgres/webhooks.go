package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const webhookColumns = `id, user_id, event, url, created_at, updated_at`

// webhookRepo runs directly on the pool; subscriptions are not part of the
// trading transaction.
type webhookRepo struct {
	pool *pgxpool.Pool
}

func scanWebhook(row scanner) (*domain.Webhook, error) {
	var w domain.Webhook
	if err := row.Scan(&w.WebhookID, &w.UserID, &w.Event, &w.URL, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *webhookRepo) Upsert(ctx context.Context, w *domain.Webhook) (bool, error) {
	if w.WebhookID == "" {
		w.WebhookID = uuid.New().String()
	}
	// xmax is zero only on rows this statement inserted.
	const query = `
		INSERT INTO webhooks (` + webhookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, event) DO UPDATE SET
			url = EXCLUDED.url,
			updated_at = CASE WHEN webhooks.url = EXCLUDED.url THEN webhooks.updated_at ELSE EXCLUDED.updated_at END
		RETURNING id, created_at, updated_at, (xmax = 0)`
	var created bool
	err := r.pool.QueryRow(ctx, query, w.WebhookID, w.UserID, w.Event, w.URL, w.CreatedAt, w.UpdatedAt).
		Scan(&w.WebhookID, &w.CreatedAt, &w.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("postgres: upsert webhook: %w", err)
	}
	return created, nil
}

func (r *webhookRepo) Find(ctx context.Context, userID string, event domain.EventKind) (*domain.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE user_id = $1 AND event = $2`
	w, err := scanWebhook(r.pool.QueryRow(ctx, query, userID, event))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find webhook: %w", err)
	}
	return w, nil
}

func (r *webhookRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Webhook, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE user_id = $1 ORDER BY event`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list webhooks: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Webhook, 0)
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan webhook: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list webhooks: %w", err)
	}
	return out, nil
}

func (r *webhookRepo) Delete(ctx context.Context, userID, webhookID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1 AND user_id = $2`, webhookID, userID)
	if err != nil {
		return fmt.Errorf("postgres: delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}
