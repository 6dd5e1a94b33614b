package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/cloud"
	"github.com/dukerupert/larder/internal/kv"
	"github.com/dukerupert/larder/internal/record"
	"github.com/dukerupert/larder/internal/snapshot"
)

// SyncStore connects the local record store to the sync backend. Local
// data never waits on it: a failed sync leaves every local record as it was.
type SyncStore struct {
	client   *cloud.Client
	rs       *record.Store
	kv       *kv.Store
	settings *SettingsStore
	logger   *slog.Logger

	// running serializes sync rounds.
	running sync.Mutex

	mu       sync.Mutex
	onResult []func(applied int, err error)
}

func NewSyncStore(client *cloud.Client, rs *record.Store, kvs *kv.Store, settings *SettingsStore, logger *slog.Logger) *SyncStore {
	s := &SyncStore{client: client, rs: rs, kv: kvs, settings: settings, logger: logger}
	client.OnAuthChange(s.persistSession)
	return s
}

// persistSession keeps the saved session in step with the client, including
// sign-outs forced by an expired token.
func (s *SyncStore) persistSession(st cloud.AuthState) {
	ctx := context.Background()
	var err error
	if sess := s.client.Session(); st.SignedIn && sess != nil {
		err = s.kv.Put(ctx, kv.KeySyncSession, sess)
	} else {
		err = s.kv.Delete(ctx, kv.KeySyncSession)
	}
	if err != nil {
		s.logger.Error("persist sync session", "error", err)
	}
}

// OnResult registers fn to be told about every finished sync round.
func (s *SyncStore) OnResult(fn func(applied int, err error)) {
	s.mu.Lock()
	s.onResult = append(s.onResult, fn)
	s.mu.Unlock()
}

// Restore reinstalls the session saved by an earlier run.
func (s *SyncStore) Restore(ctx context.Context) (bool, error) {
	var sess cloud.Session
	ok, err := s.kv.Get(ctx, kv.KeySyncSession, &sess)
	if err != nil {
		return false, fmt.Errorf("load sync session: %w", err)
	}
	if !ok {
		return false, nil
	}
	if !s.client.Restore(&sess) {
		s.logger.Info("saved sync session expired")
		if err := s.kv.Delete(ctx, kv.KeySyncSession); err != nil {
			return false, fmt.Errorf("clear sync session: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func (s *SyncStore) CreateAccount(ctx context.Context, email, password string) (*cloud.Session, error) {
	return s.client.CreateAccount(ctx, email, password)
}

func (s *SyncStore) SignIn(ctx context.Context, email, password string) (*cloud.Session, error) {
	return s.client.SignIn(ctx, email, password)
}

func (s *SyncStore) SignOut() {
	s.client.SignOut()
}

func (s *SyncStore) AuthState() cloud.AuthState {
	return s.client.AuthState()
}

func (s *SyncStore) Status() cloud.Status {
	return s.client.Status()
}

// ForceSync uploads the local snapshot and applies the merged result the
// backend returns. It reports how many local records changed.
func (s *SyncStore) ForceSync(ctx context.Context) (int, error) {
	s.running.Lock()
	defer s.running.Unlock()

	applied, err := s.forceSync(ctx)
	s.mu.Lock()
	fns := slices.Clone(s.onResult)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(applied, err)
	}
	return applied, err
}

func (s *SyncStore) forceSync(ctx context.Context) (int, error) {
	sess := s.client.Session()
	if sess == nil {
		return 0, apperr.ErrAuthRequired
	}

	local, err := snapshot.Export(ctx, s.rs)
	if err != nil {
		return 0, err
	}
	payload, err := json.Marshal(local)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}

	merged, err := s.client.ForceSync(ctx, sess.UserID, payload)
	if err != nil {
		return 0, err
	}

	var remote snapshot.Snapshot
	if err := json.Unmarshal(merged, &remote); err != nil {
		return 0, &apperr.NetworkError{Op: "decode sync payload", Err: err}
	}
	applied, err := snapshot.Apply(ctx, s.rs, &remote)
	if err != nil {
		return 0, err
	}
	s.logger.Info("sync complete", "sent", local.Len(), "applied", applied)
	return applied, nil
}

// poll runs one auto-sync round: a full sync when auto-sync is enabled,
// otherwise only a status refresh.
func (s *SyncStore) poll(ctx context.Context) error {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	if !settings.AutoSync {
		return s.client.PollStatus(ctx)
	}
	_, err = s.ForceSync(ctx)
	return err
}

// Start begins the poll loop. It runs until Stop or ctx is done.
func (s *SyncStore) Start(ctx context.Context) {
	s.client.Start(ctx, s.poll)
}

func (s *SyncStore) Stop() {
	s.client.Stop()
}
