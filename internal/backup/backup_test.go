package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/kv"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/record"
	"github.com/dukerupert/larder/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
	delErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3NotFound{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(string(data))),
	}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.delErr != nil {
		return nil, m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type s3NotFound struct{}

func (e *s3NotFound) Error() string { return "NoSuchKey" }

var testS3 = S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"}

const testPassphrase = "correct horse battery"

type device struct {
	rs         *record.Store
	catalog    *store.BackupStore
	categories *store.CategoryStore
}

func newDevice(t *testing.T) *device {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	rs := record.New(db, testLogger())
	return &device{
		rs:         rs,
		catalog:    store.NewBackupStore(kv.New(db)),
		categories: store.NewCategoryStore(rs),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, d *device, cfg Config) (*Manager, *mockS3Client) {
	t.Helper()
	m := NewManager(cfg, d.rs, d.catalog, testLogger())
	mock := newMockS3()
	if m.client != nil {
		m.client = mock
	}
	return m, mock
}

func TestManagerStateLifecycle(t *testing.T) {
	d := newDevice(t)

	m := NewManager(Config{}, d.rs, d.catalog, testLogger())
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}

	m2 := NewManager(Config{S3: testS3}, d.rs, d.catalog, testLogger())
	if m2.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m2.Status().State, StateIdle)
	}
}

func TestRunNowDisabled(t *testing.T) {
	d := newDevice(t)
	m := NewManager(Config{}, d.rs, d.catalog, testLogger())

	if _, err := m.RunNow(context.Background(), testPassphrase); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("RunNow err = %v, want ErrNotConfigured", err)
	}
	if err := m.Cleanup(context.Background()); err != nil {
		t.Errorf("Cleanup while disabled: %v", err)
	}
}

func TestRunNowAndRestore(t *testing.T) {
	ctx := context.Background()
	phone := newDevice(t)
	if _, err := phone.categories.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m, mock := newTestManager(t, phone, Config{S3: testS3})
	var mu sync.Mutex
	var states []State
	m.OnStatus(func(s Status) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})

	b, err := m.RunNow(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if b.Status != model.BackupStatusCompleted {
		t.Errorf("backup status = %q", b.Status)
	}
	if b.Records != 14 {
		t.Errorf("records = %d, want 14", b.Records)
	}
	if !strings.HasPrefix(b.Key, "larder/backup-") || !strings.HasSuffix(b.Key, ".json.enc") {
		t.Errorf("key = %q", b.Key)
	}
	if mock.count() != 1 {
		t.Fatalf("objects uploaded = %d, want 1", mock.count())
	}
	if strings.Contains(string(mock.objects[b.Key]), "Produce") {
		t.Error("uploaded object should be encrypted")
	}
	if st := m.Status(); st.State != StateIdle || st.LastBackup == nil {
		t.Errorf("status after backup = %+v", st)
	}
	mu.Lock()
	if len(states) != 2 || states[0] != StateRunning || states[1] != StateIdle {
		t.Errorf("states = %v, want [running idle]", states)
	}
	mu.Unlock()

	// A fresh device sharing the bucket and catalog restores the snapshot.
	laptop := newDevice(t)
	laptop.catalog = phone.catalog
	m2, _ := newTestManager(t, laptop, Config{S3: testS3})
	m2.client = mock

	if _, err := m2.Restore(ctx, b.ID, "wrong passphrase"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("restore with wrong passphrase: %v", err)
	}

	n, err := m2.Restore(ctx, b.ID, testPassphrase)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 14 {
		t.Errorf("applied = %d, want 14", n)
	}
	cats, err := laptop.categories.Categories(ctx)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != 14 {
		t.Errorf("restored categories = %d, want 14", len(cats))
	}

	// Restoring again changes nothing.
	if n, _ := m2.Restore(ctx, b.ID, testPassphrase); n != 0 {
		t.Errorf("second restore applied %d, want 0", n)
	}
}

func TestRunNowUploadFailure(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t)
	m, mock := newTestManager(t, d, Config{S3: testS3})
	mock.putErr = errors.New("connection refused")

	if _, err := m.RunNow(ctx, testPassphrase); err == nil {
		t.Fatal("expected upload error")
	}
	st := m.Status()
	if st.State != StateError || st.Error == "" || st.InProgress {
		t.Errorf("status = %+v", st)
	}

	list, _ := m.List(ctx, 10)
	if len(list) != 1 || list[0].Status != model.BackupStatusFailed {
		t.Fatalf("catalog = %+v", list)
	}
	if _, _, err := m.Download(ctx, list[0].ID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("download of failed backup: %v", err)
	}
}

func TestRunNowShortPassphrase(t *testing.T) {
	d := newDevice(t)
	m, _ := newTestManager(t, d, Config{S3: testS3})
	if _, err := m.RunNow(context.Background(), "short"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestCleanupRetention(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t)
	m, mock := newTestManager(t, d, Config{S3: testS3, Retention: 24 * time.Hour})

	if _, err := m.RunNow(ctx, testPassphrase); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	// Nothing is old enough yet.
	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if mock.count() != 1 {
		t.Fatalf("objects = %d, want 1", mock.count())
	}

	m.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if mock.count() != 0 {
		t.Errorf("objects after cleanup = %d, want 0", mock.count())
	}
	if list, _ := m.List(ctx, 0); len(list) != 0 {
		t.Errorf("catalog after cleanup = %d entries", len(list))
	}
}

func TestCheckScheduleNeedsCachedKey(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t)
	m, mock := newTestManager(t, d, Config{S3: testS3, Interval: time.Hour})

	m.checkSchedule(ctx)
	if mock.count() != 0 {
		t.Fatal("no backup should run without a cached key")
	}

	if err := m.CacheKey("short"); err == nil {
		t.Error("short passphrase should be rejected")
	}
	if m.HasCachedKey() {
		t.Fatal("rejected passphrase should not be cached")
	}
	if err := m.CacheKey(testPassphrase); err != nil {
		t.Fatalf("CacheKey: %v", err)
	}

	m.checkSchedule(ctx)
	if mock.count() != 1 {
		t.Fatalf("objects = %d, want 1", mock.count())
	}

	// Within the interval nothing new runs.
	m.checkSchedule(ctx)
	if mock.count() != 1 {
		t.Errorf("objects = %d, want 1", mock.count())
	}
}

func TestUpdateS3Config(t *testing.T) {
	d := newDevice(t)
	var mu sync.Mutex
	var received []Status

	m := NewManager(Config{}, d.rs, d.catalog, testLogger())
	m.OnStatus(func(s Status) {
		mu.Lock()
		received = append(received, s)
		mu.Unlock()
	})

	m.UpdateS3Config(S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret", Region: "us-east-1"})
	if m.Status().State != StateIdle {
		t.Errorf("state after set = %q, want %q", m.Status().State, StateIdle)
	}
	m.UpdateS3Config(S3Config{})
	if m.Status().State != StateDisabled {
		t.Errorf("state after clear = %q, want %q", m.Status().State, StateDisabled)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("received %d callbacks, want 2", len(received))
	}
	if received[0].State != StateIdle || received[1].State != StateDisabled {
		t.Errorf("callbacks = %+v", received)
	}
}

func TestManagerStopSafety(t *testing.T) {
	d := newDevice(t)
	m := NewManager(Config{S3: testS3}, d.rs, d.catalog, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	m.Stop()

	// Double stop should not panic
	m.Stop()

	disabled := NewManager(Config{}, d.rs, d.catalog, testLogger())
	disabled.Start(context.Background())
	disabled.Stop()
}
