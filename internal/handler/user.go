package handler

import (
	"context"
	"net/http"
	"strings"
)

// UserHeader carries the caller's user id. Authentication happens upstream.
const UserHeader = "X-User-ID"

const maxUserIDLen = 128

type userKey struct{}

// requireUser rejects requests without a usable X-User-ID header and stores
// the id in the request context.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id == "" || len(id) > maxUserIDLen {
			WriteError(w, http.StatusUnauthorized, "unauthorized", UserHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
	})
}

// userID returns the id stored by requireUser.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userKey{}).(string)
	return id
}
