package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/larder/internal/auth"
)

// TokenVerifier turns a bearer token into the account it was issued to.
type TokenVerifier func(token string) (auth.Account, error)

// RequireBearer rejects requests without a valid "Authorization: Bearer"
// token and stores the verified account in the request context.
func RequireBearer(verify TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			acct, err := verify(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, "invalid or expired session")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAccount(r.Context(), acct)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
