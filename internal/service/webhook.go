package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
)

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	UserID string
	URL    string
	Events []string
}

// WebhookService handles webhook subscription CRUD. Delivery lives in the
// notify package.
type WebhookService struct {
	repo domain.WebhookRepository
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(repo domain.WebhookRepository) *WebhookService {
	return &WebhookService{repo: repo}
}

// Upsert validates the request and creates or updates one subscription per
// event. It returns the resulting webhooks and whether any was created.
func (s *WebhookService) Upsert(ctx context.Context, req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	if err := validateWebhookURL(req.URL); err != nil {
		return nil, false, err
	}
	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Field: "events", Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order and validating.
	seen := make(map[domain.EventKind]bool, len(req.Events))
	events := make([]domain.EventKind, 0, len(req.Events))
	for _, e := range req.Events {
		kind := domain.EventKind(e)
		if !kind.Valid() {
			return nil, false, &domain.ValidationError{
				Field:   "events",
				Message: fmt.Sprintf("unknown event type: %s. Must be one of: %s", e, eventKindList()),
			}
		}
		if !seen[kind] {
			seen[kind] = true
			events = append(events, kind)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(events))
	for _, kind := range events {
		w := &domain.Webhook{
			UserID:    req.UserID,
			Event:     kind,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created, err := s.repo.Upsert(ctx, w)
		if err != nil {
			return nil, false, err
		}
		anyCreated = anyCreated || created
		webhooks = append(webhooks, w)
	}
	return webhooks, anyCreated, nil
}

// List returns the user's subscriptions.
func (s *WebhookService) List(ctx context.Context, userID string) ([]*domain.Webhook, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Delete removes one of the user's subscriptions.
func (s *WebhookService) Delete(ctx context.Context, userID, webhookID string) error {
	return s.repo.Delete(ctx, userID, webhookID)
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return &domain.ValidationError{Field: "url", Message: "url is required"}
	}
	if len(raw) > 2048 {
		return &domain.ValidationError{Field: "url", Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return &domain.ValidationError{Field: "url", Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return &domain.ValidationError{Field: "url", Message: "url must use https scheme"}
	}
	return nil
}

func eventKindList() string {
	names := make([]string, len(domain.EventKinds))
	for i, k := range domain.EventKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
