package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/larder/internal/auth"
)

func testVerifier(token string) (auth.Account, error) {
	if token == "good" {
		return auth.Account{UserID: "user-1"}, nil
	}
	return auth.Account{}, errors.New("bad token")
}

func TestRequireBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			handler := RequireBearer(testVerifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = auth.UserID(r.Context())
			}))
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && gotUser != "user-1" {
				t.Errorf("user = %q", gotUser)
			}
		})
	}
}
