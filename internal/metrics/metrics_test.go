package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/record"
)

func TestRecordStoreCounters(t *testing.T) {
	m := New()
	m.Committed(record.Change{Events: []record.Event{
		{Table: "lists", Action: record.ActionCreated, ID: "a"},
		{Table: "list_items", Action: record.ActionCreated, ID: "b"},
		{Table: "list_items", Action: record.ActionCreated, ID: "c"},
	}})
	m.RolledBack(errors.New("boom"))

	if got := testutil.ToFloat64(m.transactions.WithLabelValues("committed")); got != 1 {
		t.Errorf("committed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.transactions.WithLabelValues("rolled_back")); got != 1 {
		t.Errorf("rolled back = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.recordEvents.WithLabelValues("list_items", "created")); got != 2 {
		t.Errorf("list_items created = %v, want 2", got)
	}
}

func TestSyncAndBackupCounters(t *testing.T) {
	m := New()
	m.SyncResult(3, nil)
	m.SyncResult(0, errors.New("offline"))
	if got := testutil.ToFloat64(m.syncRounds.WithLabelValues("ok")); got != 1 {
		t.Errorf("sync ok = %v", got)
	}
	if got := testutil.ToFloat64(m.syncApplied); got != 3 {
		t.Errorf("sync applied = %v", got)
	}

	now := time.Now()
	m.BackupStatus(backup.Status{State: backup.StateIdle, LastBackup: &now})
	m.BackupStatus(backup.Status{State: backup.StateRunning, InProgress: true})
	m.BackupStatus(backup.Status{State: backup.StateIdle, LastBackup: &now})
	m.BackupStatus(backup.Status{State: backup.StateRunning, InProgress: true})
	m.BackupStatus(backup.Status{State: backup.StateError, Error: "upload"})
	if got := testutil.ToFloat64(m.backups.WithLabelValues("ok")); got != 1 {
		t.Errorf("backups ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.backups.WithLabelValues("error")); got != 1 {
		t.Errorf("backups error = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "GET /api/lists", 200, 15*time.Millisecond)
	m.Gauge("websocket_clients", "Connected websocket clients.", func() float64 { return 4 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`larder_http_requests_total{method="GET",route="GET /api/lists",status="200"} 1`,
		`larder_websocket_clients 4`,
		`larder_http_request_duration_seconds_count{method="GET",route="GET /api/lists"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
