package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/larder/internal/cloud"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/snapshot"
)

func setupTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if cfg.Secret == "" {
		cfg.Secret = "test-secret"
	}
	cfg.BcryptCost = bcrypt.MinCost
	srv := New(st, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func register(t *testing.T, ts *httptest.Server, email string) (token, userID string) {
	t.Helper()
	resp, out := postJSON(t, ts.URL+"/v1/accounts", "", map[string]string{"email": email, "password": "hunter22"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d (%v)", resp.StatusCode, out)
	}
	return out["token"].(string), out["user_id"].(string)
}

func listSnapshot(id, name string, updated time.Time) map[string]any {
	snap := snapshot.Snapshot{
		SchemaVersion: 2,
		Lists: []model.List{{
			Meta: model.Meta{ID: id, CreatedAt: updated, UpdatedAt: updated},
			Name: name,
		}},
	}
	b, _ := json.Marshal(snap)
	var m map[string]any
	json.Unmarshal(b, &m)
	return m
}

func TestCreateAccount(t *testing.T) {
	_, ts := setupTestServer(t, Config{})

	register(t, ts, "sam@example.com")

	resp, out := postJSON(t, ts.URL+"/v1/accounts", "", map[string]string{"email": "SAM@example.com", "password": "hunter22"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", resp.StatusCode)
	}
	if out["error"] != ErrEmailTaken.Error() {
		t.Errorf("error = %v", out["error"])
	}

	resp, _ = postJSON(t, ts.URL+"/v1/accounts", "", map[string]string{"email": "x@example.com", "password": "123"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short password status = %d, want 400", resp.StatusCode)
	}
}

func TestSignIn(t *testing.T) {
	srv, ts := setupTestServer(t, Config{})
	_, userID := register(t, ts, "sam@example.com")

	resp, out := postJSON(t, ts.URL+"/v1/sessions", "", map[string]string{"email": "sam@example.com", "password": "wrong-password"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", resp.StatusCode)
	}
	if out["error"] != "invalid email or password" {
		t.Errorf("error = %v", out["error"])
	}

	resp, _ = postJSON(t, ts.URL+"/v1/sessions", "", map[string]string{"email": "nobody@example.com", "password": "hunter22"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown email status = %d, want 401", resp.StatusCode)
	}

	resp, out = postJSON(t, ts.URL+"/v1/sessions", "", map[string]string{"email": "sam@example.com", "password": "hunter22"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign in status = %d", resp.StatusCode)
	}
	acct, err := srv.tokens.Verify(out["token"].(string))
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if acct.UserID != userID || acct.Email != "sam@example.com" {
		t.Errorf("account = %+v", acct)
	}
}

func TestSyncRequiresBearer(t *testing.T) {
	_, ts := setupTestServer(t, Config{})
	resp, _ := postJSON(t, ts.URL+"/v1/sync", "", map[string]any{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	resp, _ = postJSON(t, ts.URL+"/v1/sync", "not-a-token", map[string]any{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestSyncMergesLastWriterWins(t *testing.T) {
	_, ts := setupTestServer(t, Config{})
	token, userID := register(t, ts, "sam@example.com")

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resp, _ := postJSON(t, ts.URL+"/v1/sync", token, map[string]any{
		"user_id": userID,
		"payload": listSnapshot("list-1", "Groceries v2", t0.Add(time.Hour)),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first sync status = %d", resp.StatusCode)
	}

	// An older edit from another device must not win.
	resp, out := postJSON(t, ts.URL+"/v1/sync", token, map[string]any{
		"user_id": userID,
		"payload": listSnapshot("list-1", "Groceries v1", t0),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second sync status = %d", resp.StatusCode)
	}
	payload := out["payload"].(map[string]any)
	lists := payload["lists"].([]any)
	if len(lists) != 1 {
		t.Fatalf("lists = %d, want 1", len(lists))
	}
	if name := lists[0].(map[string]any)["name"]; name != "Groceries v2" {
		t.Errorf("merged name = %v, want Groceries v2", name)
	}
	if out["synced_at"] == nil {
		t.Error("synced_at missing")
	}
}

func TestSyncUserMismatch(t *testing.T) {
	_, ts := setupTestServer(t, Config{})
	token, _ := register(t, ts, "sam@example.com")
	_, other := register(t, ts, "alex@example.com")

	resp, _ := postJSON(t, ts.URL+"/v1/sync", token, map[string]any{"user_id": other})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestSyncStatus(t *testing.T) {
	_, ts := setupTestServer(t, Config{})
	token, userID := register(t, ts, "sam@example.com")

	get := func() map[string]any {
		req, _ := http.NewRequest("GET", ts.URL+"/v1/sync/status", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		defer resp.Body.Close()
		var out map[string]any
		json.NewDecoder(resp.Body).Decode(&out)
		return out
	}

	if out := get(); out["last_sync_time"] != nil {
		t.Errorf("last_sync_time before sync = %v, want null", out["last_sync_time"])
	}
	postJSON(t, ts.URL+"/v1/sync", token, map[string]any{"user_id": userID})
	if out := get(); out["last_sync_time"] == nil {
		t.Error("last_sync_time should be set after sync")
	}
}

func TestAuthRateLimited(t *testing.T) {
	_, ts := setupTestServer(t, Config{AuthRateLimit: 2, AuthRatePeriod: time.Minute})

	creds := map[string]string{"email": "sam@example.com", "password": "hunter22"}
	for i := range 3 {
		resp, _ := postJSON(t, ts.URL+"/v1/sessions", "", creds)
		if i < 2 && resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("request %d status = %d, want 401", i+1, resp.StatusCode)
		}
		if i == 2 && resp.StatusCode != http.StatusTooManyRequests {
			t.Errorf("request %d status = %d, want 429", i+1, resp.StatusCode)
		}
	}
}

func TestTokensVerify(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	token, err := tokens.Issue(&Account{ID: "user-1", Email: "sam@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokens("other-secret", time.Hour).Verify(token); err == nil {
		t.Error("token signed with another secret should be rejected")
	}

	now = now.Add(2 * time.Hour)
	if _, err := tokens.Verify(token); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestCloudClientRoundTrip(t *testing.T) {
	_, ts := setupTestServer(t, Config{})
	client := cloud.NewClient(cloud.Config{BaseURL: ts.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	if _, err := client.CreateAccount(ctx, "sam@example.com", "hunter22"); err != nil {
		t.Fatalf("create account: %v", err)
	}
	sess := client.Session()
	if sess == nil || sess.UserID == "" || sess.ExpiresAt.IsZero() {
		t.Fatalf("session = %+v", sess)
	}

	payload, _ := json.Marshal(listSnapshot("list-1", "Groceries", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	merged, err := client.ForceSync(ctx, sess.UserID, payload)
	if err != nil {
		t.Fatalf("force sync: %v", err)
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(merged, &snap); err != nil {
		t.Fatalf("decode merged: %v", err)
	}
	if len(snap.Lists) != 1 || snap.Lists[0].Name != "Groceries" {
		t.Errorf("merged lists = %+v", snap.Lists)
	}
	if st := client.Status(); st.LastSyncTime == nil || st.Error != nil {
		t.Errorf("status = %+v", st)
	}
	if err := client.PollStatus(ctx); err != nil {
		t.Errorf("poll status: %v", err)
	}
}
