package handler

import (
	"errors"
	"net/http"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/service"
	"github.com/go-chi/chi/v5"
)

// WebhookHandler handles HTTP requests for webhook endpoints.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

type upsertWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

type webhookResponse struct {
	WebhookID string `json:"webhookId"`
	UserID    string `json:"userId"`
	Event     string `json:"event"`
	URL       string `json:"url"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type webhookListResponse struct {
	Success  bool              `json:"success"`
	Webhooks []webhookResponse `json:"webhooks"`
}

// Upsert handles POST /webhooks.
func (h *WebhookHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertWebhookRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	webhooks, anyCreated, err := h.webhookSvc.Upsert(r.Context(), service.UpsertWebhookRequest{
		UserID: userID(r),
		URL:    req.URL,
		Events: req.Events,
	})
	if err != nil {
		mapWebhookError(w, err)
		return
	}

	if anyCreated {
		writeWebhooks(w, http.StatusCreated, webhooks)
		return
	}
	writeWebhooks(w, http.StatusOK, webhooks)
}

// List handles GET /webhooks.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.webhookSvc.List(r.Context(), userID(r))
	if err != nil {
		mapWebhookError(w, err)
		return
	}
	writeWebhooks(w, http.StatusOK, webhooks)
}

// Delete handles DELETE /webhooks/{webhook_id}.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.webhookSvc.Delete(r.Context(), userID(r), chi.URLParam(r, "webhook_id")); err != nil {
		mapWebhookError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeWebhooks(w http.ResponseWriter, status int, webhooks []*domain.Webhook) {
	resp := webhookListResponse{Success: true, Webhooks: make([]webhookResponse, len(webhooks))}
	for i, wh := range webhooks {
		resp.Webhooks[i] = webhookResponse{
			WebhookID: wh.WebhookID,
			UserID:    wh.UserID,
			Event:     string(wh.Event),
			URL:       wh.URL,
			CreatedAt: wh.CreatedAt.UTC().Format(formatTime),
			UpdatedAt: wh.UpdatedAt.UTC().Format(formatTime),
		}
	}
	WriteJSON(w, status, resp)
}

// mapWebhookError maps domain errors to HTTP responses for webhook endpoints.
func mapWebhookError(w http.ResponseWriter, err error) {
	if writeDomainError(w, err) {
		return
	}
	if errors.Is(err, domain.ErrWebhookNotFound) {
		WriteError(w, http.StatusNotFound, "webhook_not_found", "Webhook not found")
		return
	}
	writeInternalError(w)
}
