package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

// UserHeader carries the authenticated user's ID, injected by the ImmoNow
// API gateway after token validation. Token management itself happens
// upstream; this service only consumes the resulting identity.
const UserHeader = "X-Immonow-User"

// RequireUser ensures the request carries a gateway-supplied user identity
// and places it in the context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserHeader)
		if raw == "" {
			jsonError(w, http.StatusUnauthorized, "missing user identity")
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid user identity")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated user ID from the request
// context. Returns uuid.Nil when no identity was attached.
func GetUserFromContext(ctx context.Context) uuid.UUID {
	userID, ok := ctx.Value(userContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}
