package notify

import (
	"context"
	"log/slog"

	"github.com/efreitasn/predictx/internal/domain"
)

// LogSender writes each notification as a structured log line.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "notification"))}
}

func (s *LogSender) Send(ctx context.Context, n domain.Notification) error {
	attrs := []slog.Attr{
		slog.String("event", string(n.Kind)),
		slog.String("user_id", n.UserID),
		slog.Int("trades", len(n.Trades)),
	}
	if n.Order != nil {
		attrs = append(attrs,
			slog.String("order_id", n.Order.OrderID),
			slog.String("market_id", n.Order.MarketID),
			slog.String("status", string(n.Order.Status)),
			slog.Int64("filled", n.Order.FilledQuantity),
		)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "notification", attrs...)
	return nil
}

func (s *LogSender) Name() string {
	return "log"
}
