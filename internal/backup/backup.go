// Package backup uploads encrypted snapshots of the record store to
// S3-compatible storage and restores them.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/record"
	"github.com/dukerupert/larder/internal/snapshot"
	"github.com/dukerupert/larder/internal/store"
)

// ErrNotConfigured is returned while S3 credentials are missing.
var ErrNotConfigured = errors.New("backup not configured: S3 credentials missing")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds backup manager configuration.
type Config struct {
	S3        S3Config
	Prefix    string
	Interval  time.Duration
	Retention time.Duration
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Manager manages encrypted backups to S3-compatible storage.
type Manager struct {
	mu        sync.RWMutex
	cfg       Config
	status    Status
	callbacks []StatusCallback

	rs      *record.Store
	catalog *store.BackupStore
	client  s3Client
	logger  *slog.Logger

	// passphrase is kept in memory only, for scheduled backups.
	passphrase string

	// running serializes backups and restores.
	running sync.Mutex

	checkEvery time.Duration
	now        func() time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewManager creates a backup manager. It is disabled until S3 credentials are set.
func NewManager(cfg Config, rs *record.Store, catalog *store.BackupStore, logger *slog.Logger) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = "larder"
	}
	if cfg.Interval == 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Retention == 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	m := &Manager{
		cfg:        cfg,
		rs:         rs,
		catalog:    catalog,
		logger:     logger,
		status:     Status{State: StateDisabled},
		checkEvery: time.Minute,
		now:        time.Now,
	}
	if cfg.S3.complete() {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// OnStatus registers cb to receive every status change.
func (m *Manager) OnStatus(cb StatusCallback) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.mu.Unlock()
}

// UpdateS3Config hot-reloads the S3 configuration.
func (m *Manager) UpdateS3Config(s3cfg S3Config) {
	m.mu.Lock()
	m.cfg.S3 = s3cfg
	if s3cfg.complete() {
		m.client = newS3Client(s3cfg)
		m.status.State = StateIdle
	} else {
		m.client = nil
		m.status.State = StateDisabled
	}
	m.mu.Unlock()
	m.notify()
}

// Start begins the scheduled backup loop. It does nothing while disabled.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled || m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	if last, err := m.catalog.LastCompleted(ctx); err == nil && last != nil {
		m.mu.Lock()
		m.status.LastBackup = last.CompletedAt
		m.mu.Unlock()
	}

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.checkEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop gracefully stops the backup manager.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(fn func(*Status)) {
	m.mu.Lock()
	fn(&m.status)
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) notify() {
	m.mu.RLock()
	st := m.status
	cbs := append([]StatusCallback(nil), m.callbacks...)
	m.mu.RUnlock()
	for _, cb := range cbs {
		cb(st)
	}
}

// CacheKey keeps the passphrase in memory for scheduled backups.
func (m *Manager) CacheKey(passphrase string) error {
	if err := checkPassphrase(passphrase); err != nil {
		return err
	}
	m.mu.Lock()
	m.passphrase = passphrase
	m.mu.Unlock()
	return nil
}

// HasCachedKey reports whether scheduled backups can run.
func (m *Manager) HasCachedKey() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.passphrase != ""
}

func checkPassphrase(p string) error {
	if len(strings.TrimSpace(p)) < 8 {
		return apperr.Invalid("passphrase", "must be at least 8 characters")
	}
	return nil
}

func (m *Manager) checkSchedule(ctx context.Context) {
	m.mu.RLock()
	passphrase := m.passphrase
	last := m.status.LastBackup
	interval := m.cfg.Interval
	m.mu.RUnlock()

	if passphrase == "" {
		return
	}
	if last != nil && m.now().Sub(*last) < interval {
		return
	}

	if _, err := m.RunNow(ctx, passphrase); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}
	if err := m.Cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}
}

func (m *Manager) s3() (s3Client, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, "", ErrNotConfigured
	}
	return m.client, m.cfg.S3.Bucket, nil
}

// RunNow exports, encrypts and uploads a snapshot immediately.
func (m *Manager) RunNow(ctx context.Context, passphrase string) (*model.Backup, error) {
	if err := checkPassphrase(passphrase); err != nil {
		return nil, err
	}
	client, bucket, err := m.s3()
	if err != nil {
		return nil, err
	}

	m.running.Lock()
	defer m.running.Unlock()

	m.setStatus(func(s *Status) {
		s.State = StateRunning
		s.InProgress = true
		s.Error = ""
	})

	b, err := m.runBackup(ctx, client, bucket, passphrase)
	if err != nil {
		m.setStatus(func(s *Status) {
			s.State = StateError
			s.InProgress = false
			s.Error = err.Error()
		})
		return nil, err
	}

	m.setStatus(func(s *Status) {
		s.State = StateIdle
		s.InProgress = false
		s.LastBackup = b.CompletedAt
	})
	m.logger.Info("backup complete", "id", b.ID, "records", b.Records, "bytes", b.SizeBytes)
	return b, nil
}

func (m *Manager) runBackup(ctx context.Context, client s3Client, bucket, passphrase string) (*model.Backup, error) {
	m.mu.RLock()
	prefix := m.cfg.Prefix
	m.mu.RUnlock()

	timestamp := m.now().UTC().Format("2006-01-02T150405.000Z")
	key := fmt.Sprintf("%s/backup-%s.json.enc", prefix, timestamp)

	b, err := m.catalog.Create(ctx, key)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*model.Backup, error) {
		if uerr := m.catalog.UpdateStatus(ctx, b.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("record backup failure", "id", b.ID, "error", uerr)
		}
		return nil, err
	}

	snap, err := snapshot.Export(ctx, m.rs)
	if err != nil {
		return fail(err)
	}
	plain, err := json.Marshal(snap)
	if err != nil {
		return fail(fmt.Errorf("encode snapshot: %w", err))
	}
	sealed, err := Seal(plain, passphrase)
	if err != nil {
		return fail(fmt.Errorf("encrypt: %w", err))
	}

	if err := m.catalog.UpdateStatus(ctx, b.ID, model.BackupStatusUploading, ""); err != nil {
		return fail(err)
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return fail(fmt.Errorf("upload to s3: %w", err))
	}

	if err := m.catalog.UpdateCompleted(ctx, b.ID, int64(len(sealed)), snap.Len()); err != nil {
		return nil, err
	}
	return m.catalog.Get(ctx, b.ID)
}

// List returns the catalog of backups, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	return m.catalog.List(ctx, limit)
}

// Restore downloads and decrypts a backup and merges it into the local
// store. Newer local edits survive; it reports how many records changed.
func (m *Manager) Restore(ctx context.Context, id, passphrase string) (int, error) {
	body, _, err := m.Download(ctx, id)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	m.running.Lock()
	defer m.running.Unlock()

	sealed, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("read backup: %w", err)
	}
	plain, err := Open(sealed, passphrase)
	if err != nil {
		return 0, err
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return 0, fmt.Errorf("decode backup: %w", err)
	}
	n, err := snapshot.Apply(ctx, m.rs, &snap)
	if err != nil {
		return 0, err
	}
	m.logger.Info("backup restored", "id", id, "applied", n)
	return n, nil
}

// Download streams an encrypted backup from S3.
func (m *Manager) Download(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	client, bucket, err := m.s3()
	if err != nil {
		return nil, 0, err
	}
	b, err := m.catalog.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if b.Status != model.BackupStatusCompleted {
		return nil, 0, apperr.Invalid("id", "backup did not complete")
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(b.Key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("download from s3: %w", err)
	}
	return result.Body, b.SizeBytes, nil
}

// Cleanup deletes backups older than the retention period.
func (m *Manager) Cleanup(ctx context.Context) error {
	client, bucket, err := m.s3()
	if errors.Is(err, ErrNotConfigured) {
		return nil
	}

	m.mu.RLock()
	before := m.now().Add(-m.cfg.Retention)
	m.mu.RUnlock()

	keys, err := m.catalog.DeleteOlderThan(ctx, before)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	return nil
}
