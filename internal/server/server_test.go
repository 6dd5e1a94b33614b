package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/larder/internal/config"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/push"
	"github.com/dukerupert/larder/internal/websocket"
)

func setupTestServer(t *testing.T, cfg config.Config) (*Server, *httptest.Server) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, cfg, logger)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(srv.Stop)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealthAndSeededCategories(t *testing.T) {
	_, ts := setupTestServer(t, config.Default())

	if code, body := get(t, ts.URL+"/health"); code != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Fatalf("health = %d %s", code, body)
	}

	code, body := get(t, ts.URL+"/api/categories")
	if code != http.StatusOK {
		t.Fatalf("categories = %d %s", code, body)
	}
	var cats []map[string]any
	if err := json.Unmarshal([]byte(body), &cats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cats) != 14 {
		t.Errorf("got %d categories, want 14", len(cats))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := setupTestServer(t, config.Default())

	code, body := get(t, ts.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics = %d", code)
	}
	for _, want := range []string{
		`larder_transactions_total{outcome="committed"}`,
		"larder_websocket_clients 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestPushRoutesNeedKeys(t *testing.T) {
	_, ts := setupTestServer(t, config.Default())
	if code, _ := get(t, ts.URL+"/api/push/vapid-key"); code != http.StatusNotFound {
		t.Errorf("push disabled: status = %d, want 404", code)
	}

	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Push.VAPIDPublicKey = pub
	cfg.Push.VAPIDPrivateKey = priv
	_, ts = setupTestServer(t, cfg)

	code, body := get(t, ts.URL+"/api/push/vapid-key")
	if code != http.StatusOK || !strings.Contains(body, pub) {
		t.Errorf("push enabled: %d %s", code, body)
	}
}

func TestWritesReachWebsocketClients(t *testing.T) {
	srv, ts := setupTestServer(t, config.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	for srv.hub.ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	resp, err := http.Post(ts.URL+"/api/lists", "application/json", strings.NewReader(`{"name":"Weekly"}`))
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create list status = %d", resp.StatusCode)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got websocket.Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "lists_created" || got.Table != "lists" || len(got.IDs) != 1 {
		t.Errorf("message = %+v", got)
	}
}
