package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
)

// ChangeChannel is the NOTIFY channel written by the row change triggers.
const ChangeChannel = "row_changes"

const (
	listenMinBackoff = time.Second
	listenMaxBackoff = 30 * time.Second
)

// Listen forwards row change notifications to out until ctx is done,
// reconnecting with exponential backoff when the connection drops.
// Notifications raised while disconnected are lost.
func (s *Store) Listen(ctx context.Context, out chan<- domain.ChangeEvent) error {
	backoff := listenMinBackoff
	for {
		err := s.listenOnce(ctx, out, func() { backoff = listenMinBackoff })
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("change listener disconnected",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", backoff),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, listenMaxBackoff)
	}
}

func (s *Store) listenOnce(ctx context.Context, out chan<- domain.ChangeEvent, connected func()) error {
	conn, err := s.client.Pool().Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	connected()
	s.logger.Info("listening for row changes", slog.String("channel", ChangeChannel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		ev, err := decodeChange([]byte(n.Payload))
		if err != nil {
			s.logger.Error("decode row change", slog.String("error", err.Error()))
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var jsonNull = []byte("null")

func decodeChange(payload []byte) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, err
	}
	if ev.Operation == "" || ev.Table == "" {
		return ev, errors.New("missing operation or table")
	}
	if bytes.Equal(ev.New, jsonNull) {
		ev.New = nil
	}
	if bytes.Equal(ev.Old, jsonNull) {
		ev.Old = nil
	}
	return ev, nil
}
