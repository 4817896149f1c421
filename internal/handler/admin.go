package handler

import (
	"net/http"

	"github.com/efreitasn/predictx/internal/engine"
)

// AdminHandler exposes operational checks.
type AdminHandler struct {
	reconciler *engine.Reconciler
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(reconciler *engine.Reconciler) *AdminHandler {
	return &AdminHandler{reconciler: reconciler}
}

// Reconcile handles GET /admin/reconcile. It answers 200 with the report
// when the books balance and 409 when any violation was found.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Check(r.Context())
	if err != nil {
		writeInternalError(w)
		return
	}
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusConflict
	}
	WriteJSON(w, status, report)
}
