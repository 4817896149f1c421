package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/efreitasn/predictx/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format. Field, Required
// and Available are set only for the failures they describe.
type errorResponse struct {
	Success   bool     `json:"success"`
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Field     string   `json:"field,omitempty"`
	Required  *float64 `json:"required,omitempty"`
	Available *float64 `json:"available,omitempty"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// writeDomainError handles the failures shared by every endpoint:
// validation, insufficient funds and persistence. It reports whether err
// was one of them.
func writeDomainError(w http.ResponseWriter, err error) bool {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		WriteJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: ve.Message,
			Field:   ve.Field,
		})
		return true
	}

	var ife *domain.InsufficientFundsError
	if errors.As(err, &ife) {
		required := domain.CentsToDollars(ife.Required)
		available := domain.CentsToDollars(ife.Available)
		WriteJSON(w, http.StatusConflict, errorResponse{
			Error:     "insufficient_funds",
			Message:   ife.Error(),
			Required:  &required,
			Available: &available,
		})
		return true
	}

	if errors.Is(err, domain.ErrPersistence) {
		WriteError(w, http.StatusInternalServerError, "persistence_error", "The request could not be completed; no changes were made")
		return true
	}
	return false
}

func writeInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// formatTime is the timestamp layout of every response body.
const formatTime = "2006-01-02T15:04:05Z"
