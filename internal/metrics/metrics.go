// Package metrics exposes Prometheus collectors for the record store,
// sync, backups and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/record"
)

const namespace = "larder"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	transactions  *prometheus.CounterVec
	recordEvents  *prometheus.CounterVec
	syncRounds    *prometheus.CounterVec
	syncApplied   prometheus.Counter
	backups       *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec

	mu          sync.Mutex
	backupState backup.State
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Record store write transactions by outcome.",
		}, []string{"outcome"}),
		recordEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_events_total",
			Help:      "Committed record mutations by table and action.",
		}, []string{"table", "action"}),
		syncRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_rounds_total",
			Help:      "Sync rounds by outcome.",
		}, []string{"outcome"}),
		syncApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_applied_records_total",
			Help:      "Remote records applied locally by sync.",
		}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backup runs by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transactions,
		m.recordEvents,
		m.syncRounds,
		m.syncApplied,
		m.backups,
		m.httpRequests,
		m.httpDurations,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WatchStore counts the store's commits, rollbacks and live subscriptions.
func (m *Metrics) WatchStore(rs *record.Store) {
	rs.OnCommit(m.Committed)
	rs.OnRollback(m.RolledBack)
	m.Gauge("record_subscriptions", "Live record store subscriptions.", func() float64 {
		return float64(rs.Subscriptions())
	})
}

// Gauge registers a gauge read from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *Metrics) Committed(c record.Change) {
	m.transactions.WithLabelValues("committed").Inc()
	for _, e := range c.Events {
		m.recordEvents.WithLabelValues(e.Table, string(e.Action)).Inc()
	}
}

func (m *Metrics) RolledBack(error) {
	m.transactions.WithLabelValues("rolled_back").Inc()
}

// SyncResult has the signature of a sync result callback.
func (m *Metrics) SyncResult(applied int, err error) {
	if err != nil {
		m.syncRounds.WithLabelValues("error").Inc()
		return
	}
	m.syncRounds.WithLabelValues("ok").Inc()
	m.syncApplied.Add(float64(applied))
}

// BackupStatus counts finished backup runs. It has the signature of a
// backup status callback.
func (m *Metrics) BackupStatus(s backup.Status) {
	m.mu.Lock()
	prev := m.backupState
	m.backupState = s.State
	m.mu.Unlock()

	if prev != backup.StateRunning {
		return
	}
	switch s.State {
	case backup.StateIdle:
		m.backups.WithLabelValues("ok").Inc()
	case backup.StateError:
		m.backups.WithLabelValues("error").Inc()
	}
}

// ObserveRequest has the signature of middleware.RequestObserver.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDurations.WithLabelValues(method, route).Observe(d.Seconds())
}
