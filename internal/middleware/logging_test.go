package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var gotRoute string
	var gotStatus int
	obs := func(method, route string, status int, d time.Duration) {
		gotRoute, gotStatus = route, status
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/lists/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	})
	handler := RequestLogger(logger, obs)(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/lists/abc", nil))

	if gotRoute != "GET /api/lists/{id}" || gotStatus != http.StatusNotFound {
		t.Errorf("observer got %q %d", gotRoute, gotStatus)
	}
	line := buf.String()
	for _, want := range []string{"level=WARN", "status=404", "bytes=7", "path=/api/lists/abc"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}
