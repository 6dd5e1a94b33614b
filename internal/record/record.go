// Package record is the embedded record store: typed tables over SQLite with
// soft deletion, serialized write transactions and live queries that
// re-deliver result sets after every committed write touching their table.
package record

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/larder/internal/apperr"
)

// Action describes what a committed write did to one record.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Event is one record mutation inside a committed write.
type Event struct {
	Table  string `json:"table"`
	Action Action `json:"action"`
	ID     string `json:"id"`
}

// Change lists the events of one committed write in the order they were issued.
type Change struct {
	Events []Event
}

// Tables returns the distinct tables touched, in first-touched order.
func (c Change) Tables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range c.Events {
		if !seen[e.Table] {
			seen[e.Table] = true
			out = append(out, e.Table)
		}
	}
	return out
}

// Touches reports whether the change wrote to table.
func (c Change) Touches(table string) bool {
	for _, e := range c.Events {
		if e.Table == table {
			return true
		}
	}
	return false
}

// Reader runs read queries. Both *Store and *Tx satisfy it.
type Reader interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store is the process-wide record store handle. Construct it once and pass
// it to every domain store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	// mu serializes write transactions; pubMu keeps notifications in commit order.
	mu    sync.Mutex
	pubMu sync.Mutex

	obsMu     sync.RWMutex
	observers map[uint64]observer
	nextObsID uint64

	hookMu     sync.RWMutex
	onCommit   []func(Change)
	onRollback []func(error)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created/updated/deleted timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCommitHook registers fn as if by OnCommit.
func WithCommitHook(fn func(Change)) Option {
	return func(s *Store) { s.onCommit = append(s.onCommit, fn) }
}

// WithRollbackHook registers fn as if by OnRollback.
func WithRollbackHook(fn func(error)) Option {
	return func(s *Store) { s.onRollback = append(s.onRollback, fn) }
}

// New wraps an opened and migrated database.
func New(db *sql.DB, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		db:        db,
		logger:    logger,
		now:       time.Now,
		observers: make(map[uint64]observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock truncated to the stored millisecond precision.
func (s *Store) Now() time.Time {
	return time.UnixMilli(s.now().UnixMilli())
}

// QueryContext runs a read outside of any write transaction.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// OnCommit registers fn to run after every committed write that changed at
// least one record. fn must not call Write.
func (s *Store) OnCommit(fn func(Change)) {
	s.hookMu.Lock()
	s.onCommit = append(s.onCommit, fn)
	s.hookMu.Unlock()
}

// OnRollback registers fn to run after every rolled back write.
func (s *Store) OnRollback(fn func(error)) {
	s.hookMu.Lock()
	s.onRollback = append(s.onRollback, fn)
	s.hookMu.Unlock()
}

// Read runs fn against one consistent view of the database. Nothing fn
// does is published.
func (s *Store) Read(ctx context.Context, fn func(r Reader) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()
	return fn(tx)
}

// Tx is a write transaction handed to the Write block.
type Tx struct {
	ctx    context.Context
	tx     *sql.Tx
	store  *Store
	events []Event
}

// Context returns the context of the enclosing Write.
func (t *Tx) Context() context.Context { return t.ctx }

// Now returns the store clock.
func (t *Tx) Now() time.Time { return t.store.Now() }

// QueryContext reads inside the transaction, seeing its uncommitted writes.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, query, args...)
}

func (t *Tx) record(table string, action Action, id string) {
	t.events = append(t.events, Event{Table: table, Action: action, ID: id})
}

// Write runs fn inside one transaction. Operations apply in the order issued
// and commit atomically; if fn or the commit fails everything is rolled back
// and the cause is returned wrapped in *apperr.TransactionError. Writes are
// serialized across goroutines. fn must not call Write on the same store.
func (s *Store) Write(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	change, err := s.write(ctx, fn)
	if err != nil {
		s.mu.Unlock()
		s.rolledBack(err)
		return &apperr.TransactionError{Err: err}
	}
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	if len(change.Events) > 0 {
		s.publish(ctx, change)
	}
	return nil
}

func (s *Store) write(ctx context.Context, fn func(tx *Tx) error) (Change, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Change{}, err
	}
	defer sqlTx.Rollback()

	tx := &Tx{ctx: ctx, tx: sqlTx, store: s}
	if err := fn(tx); err != nil {
		return Change{}, err
	}
	if err := sqlTx.Commit(); err != nil {
		return Change{}, err
	}
	return Change{Events: tx.events}, nil
}

func (s *Store) rolledBack(err error) {
	s.logger.Debug("write rolled back", "error", err)
	s.hookMu.RLock()
	hooks := s.onRollback
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func (s *Store) publish(ctx context.Context, change Change) {
	s.hookMu.RLock()
	hooks := s.onCommit
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(change)
	}

	s.obsMu.RLock()
	var targets []observer
	for _, o := range s.observers {
		if change.Touches(o.table()) {
			targets = append(targets, o)
		}
	}
	s.obsMu.RUnlock()

	// Refresh with a context that outlives a cancelled writer.
	ctx = context.WithoutCancel(ctx)
	for _, o := range targets {
		o.refresh(ctx)
	}
}
