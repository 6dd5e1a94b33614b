package push

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/kv"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/record"
	"github.com/dukerupert/larder/internal/store"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

// fakePushService answers push requests by endpoint.
type fakePushService struct {
	mu     sync.Mutex
	status map[string]int
	calls  map[string]int
}

func (f *fakePushService) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	endpoint := req.URL.String()
	f.calls[endpoint]++
	code, ok := f.status[endpoint]
	if !ok {
		code = http.StatusCreated
	}
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (f *fakePushService) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

const (
	phoneEndpoint = "https://push.example.com/phone"
	goneEndpoint  = "https://push.example.com/gone"
)

type testEnv struct {
	sched    *Scheduler
	fake     *fakePushService
	subs     *store.PushStore
	pantry   *store.PantryStore
	settings *store.SettingsStore
}

func setupScheduler(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rs := record.New(db, logger, record.WithClock(func() time.Time { return now }))
	kvs := kv.New(db)

	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("vapid: %v", err)
	}
	svc := NewService(Config{VAPIDPublicKey: pub, VAPIDPrivateKey: priv})
	fake := &fakePushService{status: map[string]int{}, calls: map[string]int{}}
	svc.client = fake

	env := &testEnv{
		fake:     fake,
		subs:     store.NewPushStore(kvs),
		pantry:   store.NewPantryStore(rs, logger),
		settings: store.NewSettingsStore(kvs),
	}
	env.sched = NewScheduler(svc, env.subs, env.pantry, env.settings, logger)
	env.sched.now = func() time.Time { return now }

	// Keys from a real browser subscription.
	for _, endpoint := range []string{phoneEndpoint, goneEndpoint} {
		_, err := env.subs.Subscribe(context.Background(), model.PushSubscription{
			Endpoint:  endpoint,
			P256dhKey: "BNNL5ZaTfK81qhXOx23-wewhigUeFb632jN6LvRWCFH1ubQr77FE_9qV1FuojuRmHP42zmf34rXgW80OvUVDgTk",
			AuthKey:   "zqbxT6JKstKSY9JKibZLSQ",
		})
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	return env
}

func (e *testEnv) addPantry(t *testing.T, name string, expiry *time.Time) {
	t.Helper()
	_, err := e.pantry.AddItem(context.Background(), model.NewPantryItem{
		Name:       name,
		Quantity:   1,
		ExpiryDate: expiry,
	})
	if err != nil {
		t.Fatalf("add pantry %q: %v", name, err)
	}
}

func TestCheckPantryReminders(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.Local)
	env := setupScheduler(t, now)
	env.fake.status[goneEndpoint] = http.StatusGone

	tomorrow := now.AddDate(0, 0, 1)
	lastWeek := now.AddDate(0, 0, -7)
	nextMonth := now.AddDate(0, 1, 0)
	env.addPantry(t, "Milk", &tomorrow)
	env.addPantry(t, "Yogurt", &lastWeek)
	env.addPantry(t, "Rice", &nextMonth)
	env.addPantry(t, "Salt", nil)

	sent, err := env.sched.CheckPantry(context.Background())
	if err != nil {
		t.Fatalf("CheckPantry: %v", err)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}
	if got := env.fake.count(phoneEndpoint); got != 2 {
		t.Errorf("phone received %d, want 2", got)
	}
	if got := env.fake.count(goneEndpoint); got != 1 {
		t.Errorf("gone endpoint contacted %d times, want 1", got)
	}

	subs, _ := env.subs.Subscriptions(context.Background())
	if len(subs) != 1 || subs[0].Endpoint != phoneEndpoint {
		t.Errorf("expired subscription should be pruned, got %+v", subs)
	}

	// Same day: nothing new.
	sent, err = env.sched.CheckPantry(context.Background())
	if err != nil {
		t.Fatalf("CheckPantry: %v", err)
	}
	if sent != 0 {
		t.Errorf("second run sent %d, want 0", sent)
	}
}

func TestCheckPantryRemindersDisabled(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.Local)
	env := setupScheduler(t, now)
	env.addPantry(t, "Milk", &now)

	off := false
	if _, err := env.settings.Update(context.Background(), model.SettingsPatch{ExpiryReminders: &off}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	sent, err := env.sched.CheckPantry(context.Background())
	if err != nil {
		t.Fatalf("CheckPantry: %v", err)
	}
	if sent != 0 || env.fake.count(phoneEndpoint) != 0 {
		t.Errorf("reminders disabled, sent %d", sent)
	}
}

func TestReminderText(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.Local)
	tests := []struct {
		offset int
		want   string
		ok     bool
	}{
		{-3, "Milk expired 3 days ago", true},
		{-1, "Milk expired 1 day ago", true},
		{0, "Milk expires today", true},
		{1, "Milk expires tomorrow", true},
		{3, "Milk expires in 3 days", true},
		{4, "", false},
	}
	for _, tt := range tests {
		expiry := now.AddDate(0, 0, tt.offset)
		item := model.PantryItem{Meta: model.Meta{ID: "p1"}, Name: "Milk", ExpiryDate: &expiry}
		p, ok := reminder(item, now)
		if ok != tt.ok {
			t.Errorf("offset %d: ok = %v, want %v", tt.offset, ok, tt.ok)
			continue
		}
		if ok && p.Body != tt.want {
			t.Errorf("offset %d: body = %q, want %q", tt.offset, p.Body, tt.want)
		}
		if ok && p.Tag != "pantry-p1" {
			t.Errorf("tag = %q", p.Tag)
		}
	}
}

func TestSchedulerStopSafety(t *testing.T) {
	env := setupScheduler(t, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	env.sched.Start(ctx)
	cancel()
	env.sched.Stop()
	env.sched.Stop()
}
