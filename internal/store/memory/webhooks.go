package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/google/uuid"
)

// webhookStore keeps subscriptions outside the transactional state.
// Primary index: webhook_id → webhook.
// Secondary index: user_id → event → webhook.
type webhookStore struct {
	mu       sync.RWMutex
	webhooks map[string]*domain.Webhook
	byUser   map[string]map[domain.EventKind]*domain.Webhook
}

func newWebhookStore() *webhookStore {
	return &webhookStore{
		webhooks: make(map[string]*domain.Webhook),
		byUser:   make(map[string]map[domain.EventKind]*domain.Webhook),
	}
}

func (s *webhookStore) Upsert(_ context.Context, w *domain.Webhook) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byUser[w.UserID][w.Event]; ok {
		if existing.URL != w.URL {
			existing.URL = w.URL
			existing.UpdatedAt = w.UpdatedAt
		}
		w.WebhookID = existing.WebhookID
		w.CreatedAt = existing.CreatedAt
		w.UpdatedAt = existing.UpdatedAt
		return false, nil
	}

	if w.WebhookID == "" {
		w.WebhookID = uuid.New().String()
	}
	cp := *w
	s.webhooks[w.WebhookID] = &cp
	if s.byUser[w.UserID] == nil {
		s.byUser[w.UserID] = make(map[domain.EventKind]*domain.Webhook)
	}
	s.byUser[w.UserID][w.Event] = &cp
	return true, nil
}

func (s *webhookStore) Find(_ context.Context, userID string, event domain.EventKind) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byUser[userID][event]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *webhookStore) ListByUser(_ context.Context, userID string) ([]*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byUser[userID]
	out := make([]*domain.Webhook, 0, len(events))
	for _, w := range events {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event < out[j].Event })
	return out, nil
}

func (s *webhookStore) Delete(_ context.Context, userID, webhookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[webhookID]
	if !ok || w.UserID != userID {
		return domain.ErrWebhookNotFound
	}
	delete(s.webhooks, webhookID)
	if events, ok := s.byUser[w.UserID]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byUser, w.UserID)
		}
	}
	return nil
}
