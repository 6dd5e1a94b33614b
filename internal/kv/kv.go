// Package kv persists small JSON documents under fixed keys. Entries live
// outside the record store: there are no live queries and no integrity
// checks between keys.
package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	KeySettings          = "settings"
	KeyFavorites         = "favorites"
	KeyRecents           = "recents"
	KeySuggestions       = "suggestions"
	KeyTemplates         = "templates"
	KeyPushSubscriptions = "push_subscriptions"
	KeyPushSent          = "push_sent"
	KeySyncSession       = "sync_session"
	KeyBackups           = "backups"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Get decodes the value stored under key into dest. It reports false when
// the key has never been written.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) Put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Update reads the value under key into a fresh T, lets fn change it and
// writes it back. A missing key starts from the zero value.
func Update[T any](ctx context.Context, s *Store, key string, fn func(*T) error) (T, error) {
	var v T
	if _, err := s.Get(ctx, key, &v); err != nil {
		return v, err
	}
	if err := fn(&v); err != nil {
		return v, err
	}
	return v, s.Put(ctx, key, v)
}
