package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/google/uuid"
)

// WebhookSender POSTs the notification to the URL the user registered for
// its event kind. Users without a subscription are skipped.
type WebhookSender struct {
	webhooks domain.WebhookRepository
	client   *http.Client
}

// NewWebhookSender creates a WebhookSender. The client's timeout applies on
// top of the notifier's delivery timeout.
func NewWebhookSender(webhooks domain.WebhookRepository, client *http.Client) *WebhookSender {
	return &WebhookSender{webhooks: webhooks, client: client}
}

func (s *WebhookSender) Send(ctx context.Context, n domain.Notification) error {
	wh, err := s.webhooks.Find(ctx, n.UserID, n.Kind)
	if errors.Is(err, domain.ErrWebhookNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("webhook: find subscription: %w", err)
	}

	body, err := json.Marshal(NewPayload(n))
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", string(n.Kind))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (s *WebhookSender) Name() string {
	return "webhook"
}
