// Package notify delivers order notifications to pluggable senders.
// Delivery is fire-and-forget: Trigger returns immediately and sender
// failures are logged, never reported to the caller.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/metrics"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
	// Name identifies the sender in logs and metrics.
	Name() string
}

// Notifier fans notifications out to every sender on a background
// goroutine. Only event kinds in the allowed set are forwarded; an empty
// set allows all.
type Notifier struct {
	senders []Sender
	events  map[domain.EventKind]bool
	timeout time.Duration
	wg      sync.WaitGroup
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. timeout bounds each delivery round.
func NewNotifier(senders []Sender, events []string, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventKind]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventKind(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		timeout: timeout,
		metrics: m,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Trigger schedules delivery of n and returns immediately.
func (n *Notifier) Trigger(ctx context.Context, note domain.Notification) {
	if len(n.events) > 0 && !n.events[note.Kind] {
		n.logger.Debug("event filtered out", slog.String("event", string(note.Kind)))
		return
	}
	if len(n.senders) == 0 {
		return
	}

	// Delivery outlives the request that triggered it.
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.dispatch(ctx, note)
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(ctx context.Context, note domain.Notification) {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, note); err != nil {
			n.metrics.NotificationFailed(s.Name())
			n.logger.Error("sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", string(note.Kind)),
				slog.String("user_id", note.UserID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.metrics.NotificationSent(s.Name())
	}
}
