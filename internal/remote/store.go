package remote

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/snapshot"
)

//go:embed migrations/*.sql
var migrations embed.FS

const schemaVersion int64 = 1

// ErrEmailTaken is returned when an account already uses the address.
var ErrEmailTaken = errors.New("an account with this email already exists")

// Account is a registered sync user.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Store persists accounts and one merged snapshot per account.
type Store struct {
	db *sql.DB
}

// Open opens the backend database at path and migrates it.
func Open(path string) (*Store, error) {
	db, err := database.Connect(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, migrations, schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAccount inserts a new account. Email comparison ignores case.
func (s *Store) CreateAccount(ctx context.Context, email, passwordHash string, now time.Time) (*Account, error) {
	a := &Account{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(email),
		PasswordHash: passwordHash,
		CreatedAt:    now.Truncate(time.Millisecond),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.Email, a.PasswordHash, a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

// AccountByEmail looks an account up by address.
func (s *Store) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE email = ?`,
		strings.TrimSpace(email),
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &created)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("account", email)
	}
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	a.CreatedAt = time.UnixMilli(created)
	return &a, nil
}

// Snapshot returns the stored snapshot for userID, or an empty one when the
// user has never synced.
func (s *Store) Snapshot(ctx context.Context, userID string) (*snapshot.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE user_id = ?`, userID).Scan(&payload)
	if err == sql.ErrNoRows {
		return &snapshot.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSnapshot replaces the stored snapshot for userID.
func (s *Store) SaveSnapshot(ctx context.Context, userID string, snap *snapshot.Snapshot, syncedAt time.Time) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (user_id, payload, synced_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET payload = excluded.payload, synced_at = excluded.synced_at`,
		userID, string(payload), syncedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LastSync returns when userID last synced, or nil.
func (s *Store) LastSync(ctx context.Context, userID string) (*time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT synced_at FROM snapshots WHERE user_id = ?`, userID).Scan(&ms)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last sync: %w", err)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}
