package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/notify"
	"github.com/redis/go-redis/v9"
)

const streamMaxLen = 100_000

// StreamSender appends notifications to a Redis stream for an external
// delivery system to consume.
type StreamSender struct {
	rdb    *redis.Client
	stream string
}

func NewStreamSender(c *Client, stream string) *StreamSender {
	return &StreamSender{rdb: c.Underlying(), stream: stream}
}

// Send appends the notification with XADD and an approximate MAXLEN.
func (s *StreamSender) Send(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(notify.NewPayload(n))
	if err != nil {
		return fmt.Errorf("redis: marshal notification: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event":   string(n.Kind),
			"user_id": n.UserID,
			"payload": payload,
		},
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", s.stream, err)
	}
	return nil
}

func (s *StreamSender) Name() string {
	return "redis_stream"
}
