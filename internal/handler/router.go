// Package handler exposes the HTTP API.
package handler

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/predictx/internal/engine"
	"github.com/efreitasn/predictx/internal/metrics"
	"github.com/efreitasn/predictx/internal/service"
	"github.com/go-chi/chi/v5"
)

// Deps are the collaborators the router dispatches to. Stream and
// Reconciler are optional; their routes are omitted when nil.
type Deps struct {
	Orders     *service.OrderService
	Balances   *service.BalanceService
	Markets    *service.MarketService
	Webhooks   *service.WebhookService
	Reconciler *engine.Reconciler
	Stream     http.Handler
	Metrics    *metrics.Metrics
	// Ready reports whether backing services are reachable. Nil means
	// always ready.
	Ready func(ctx context.Context) error
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(d Deps, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	orderH := NewOrderHandler(d.Orders)
	balanceH := NewBalanceHandler(d.Balances)
	marketH := NewMarketHandler(d.Markets)
	webhookH := NewWebhookHandler(d.Webhooks)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				logger.Warn("health check failed", slog.String("error", err.Error()))
				WriteError(w, http.StatusServiceUnavailable, "unavailable", "A backing service is unreachable")
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	if d.Stream != nil {
		r.Method(http.MethodGet, "/ws", d.Stream)
	}
	if d.Reconciler != nil {
		r.Get("/admin/reconcile", NewAdminHandler(d.Reconciler).Reconcile)
	}

	// Market routes.
	r.Post("/markets", marketH.Create)
	r.Get("/markets", marketH.List)
	r.Get("/markets/{market_id}", marketH.Get)
	r.Get("/markets/{market_id}/book", marketH.Book)
	r.Get("/markets/{market_id}/trades", marketH.Trades)

	// Routes acting on behalf of the caller.
	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Post("/orders", orderH.Place)
		r.Get("/orders/{order_id}", orderH.Get)

		r.Get("/users/me/orders", orderH.ListMine)
		r.Get("/users/me/balance", balanceH.Get)
		r.Post("/users/me/deposits", balanceH.Deposit)
		r.Post("/users/me/withdrawals", balanceH.Withdraw)

		r.Post("/webhooks", webhookH.Upsert)
		r.Get("/webhooks", webhookH.List)
		r.Delete("/webhooks/{webhook_id}", webhookH.Delete)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for the WebSocket upgrade.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
