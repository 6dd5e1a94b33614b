package record

import (
	"context"
	"sync"
)

type observer interface {
	table() string
	refresh(ctx context.Context)
}

// Subscription receives the result set of a query each time it may have
// changed. Only the latest undelivered result set is kept.
type Subscription[T any] struct {
	store *Store
	query Query[T]
	id    uint64
	ch    chan []T
	stop  func() bool

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Observe runs q now and after every committed write touching q's table.
// The current result set is available on C before Observe returns. The
// subscription ends when Cancel is called or ctx is done.
// Observe must not be called from a commit hook or inside Write.
func Observe[T any](ctx context.Context, s *Store, q Query[T]) (*Subscription[T], error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	initial, err := q.All(ctx, s)
	if err != nil {
		return nil, err
	}

	sub := &Subscription[T]{store: s, query: q, ch: make(chan []T, 1)}
	sub.ch <- initial

	s.obsMu.Lock()
	s.nextObsID++
	sub.id = s.nextObsID
	s.observers[sub.id] = sub
	s.obsMu.Unlock()

	sub.mu.Lock()
	sub.stop = context.AfterFunc(ctx, sub.Cancel)
	sub.mu.Unlock()
	return sub, nil
}

// C delivers result sets. It is closed by Cancel.
func (sub *Subscription[T]) C() <-chan []T { return sub.ch }

// Cancel stops delivery and closes C. It is safe to call more than once.
func (sub *Subscription[T]) Cancel() {
	sub.once.Do(func() {
		sub.store.obsMu.Lock()
		delete(sub.store.observers, sub.id)
		sub.store.obsMu.Unlock()

		sub.mu.Lock()
		stop := sub.stop
		sub.closed = true
		close(sub.ch)
		sub.mu.Unlock()

		if stop != nil {
			stop()
		}
	})
}

func (sub *Subscription[T]) table() string { return sub.query.table.name }

func (sub *Subscription[T]) refresh(ctx context.Context) {
	rs, err := sub.query.All(ctx, sub.store)
	if err != nil {
		sub.store.logger.Error("refresh observed query", "table", sub.table(), "error", err)
		return
	}
	sub.deliver(rs)
}

func (sub *Subscription[T]) deliver(rs []T) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	select {
	case <-sub.ch:
	default:
	}
	sub.ch <- rs
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return len(s.observers)
}
