package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/google/uuid"
)

// newTestClient connects to PREDICTX_TEST_REDIS_ADDR or skips the test.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("PREDICTX_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PREDICTX_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMarketLocker_ExclusiveAndReleased(t *testing.T) {
	c := newTestClient(t)
	l := NewMarketLocker(c, 5*time.Second, 50*time.Millisecond)
	market := "test-" + uuid.New().String()

	unlock, err := l.Lock(context.Background(), market)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	_, err = l.Lock(context.Background(), market)
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("second Lock err = %v, want ErrLockTimeout", err)
	}

	unlock()
	unlock()

	again, err := l.Lock(context.Background(), market)
	if err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
	again()
}

func TestMarketLocker_ExpiresWithTTL(t *testing.T) {
	c := newTestClient(t)
	l := NewMarketLocker(c, 100*time.Millisecond, 2*time.Second)
	market := "test-" + uuid.New().String()

	if _, err := l.Lock(context.Background(), market); err != nil {
		t.Fatal(err)
	}
	// Never unlocked: the second caller gets in once the TTL lapses.
	unlock, err := l.Lock(context.Background(), market)
	if err != nil {
		t.Fatalf("Lock after TTL: %v", err)
	}
	unlock()
}

func TestStreamSender_Appends(t *testing.T) {
	c := newTestClient(t)
	stream := "predictx:test:" + uuid.New().String()
	t.Cleanup(func() { c.Underlying().Del(context.Background(), stream) })

	s := NewStreamSender(c, stream)
	n := domain.Notification{
		Kind:   domain.EventOrderPlaced,
		UserID: "u1",
		Order:  &domain.Order{OrderID: "o1", Status: domain.OrderStatusOpen},
	}
	if err := s.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs, err := c.Underlying().XRange(context.Background(), stream, "-", "+").Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Values["event"] != "order_placed" || msgs[0].Values["user_id"] != "u1" {
		t.Errorf("stream entries = %+v", msgs)
	}
}
