package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes inspected by the retry loop.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
)

// Store is a domain.Store on PostgreSQL. Write transactions run at READ
// COMMITTED and lock what they read; serialization failures and deadlocks
// are retried up to the configured number of times.
type Store struct {
	client   *Client
	retries  int
	webhooks *webhookRepo
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewStore creates a Store over client.
func NewStore(client *Client, retries int, m *metrics.Metrics, logger *slog.Logger) *Store {
	return &Store{
		client:   client,
		retries:  retries,
		webhooks: &webhookRepo{pool: client.Pool()},
		metrics:  m,
		logger:   logger.With(slog.String("component", "postgres_store")),
	}
}

// InTx runs fn in a read-write transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.withRetry(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, false, fn)
}

// InReadTx runs fn in a read-only REPEATABLE READ transaction so every
// query sees the same snapshot.
func (s *Store) InReadTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return s.withRetry(ctx, opts, true, fn)
}

func (s *Store) withRetry(ctx context.Context, opts pgx.TxOptions, readOnly bool, fn func(ctx context.Context, tx domain.Tx) error) error {
	backoff := 5 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, opts, readOnly, fn)
		if err == nil || !retryable(err) || attempt >= s.retries || ctx.Err() != nil {
			return err
		}

		s.metrics.TxRetried()
		s.logger.Warn("retrying transaction",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *Store) runTx(ctx context.Context, opts pgx.TxOptions, readOnly bool, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx, err := s.client.Pool().BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx, readOnly: readOnly}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	committed = true
	return nil
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return true
	case sqlStateUniqueViolation:
		// Two transactions opening the same account race on the insert;
		// the retry finds the winner's row.
		return pgErr.ConstraintName == "user_balances_pkey"
	}
	return false
}

// Webhooks returns the webhook repository, which runs outside transactions.
func (s *Store) Webhooks() domain.WebhookRepository {
	return s.webhooks
}

// Close is a no-op; the Client owns the pool.
func (s *Store) Close() {}

// pgTx binds repositories to one pgx transaction.
type pgTx struct {
	tx       pgx.Tx
	readOnly bool
}

// LockMarket takes a transaction-scoped advisory lock keyed by market id.
func (t *pgTx) LockMarket(ctx context.Context, marketID string) error {
	if _, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", marketID); err != nil {
		return fmt.Errorf("postgres: advisory lock %s: %w", marketID, err)
	}
	return nil
}

func (t *pgTx) Balances() domain.BalanceRepository { return balanceRepo{t} }
func (t *pgTx) Orders() domain.OrderRepository     { return orderRepo{t} }
func (t *pgTx) Trades() domain.TradeRepository     { return tradeRepo{t} }
func (t *pgTx) Markets() domain.MarketRepository   { return marketRepo{t} }

// forUpdate returns the row-locking suffix for queries whose rows the
// transaction will write.
func (t *pgTx) forUpdate() string {
	if t.readOnly {
		return ""
	}
	return " FOR UPDATE"
}

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}
