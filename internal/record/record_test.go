package record

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
)

func setupTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func createList(t *testing.T, s *Store, name string, pos int) *model.List {
	t.Helper()
	l := &model.List{Name: name, Position: pos}
	if err := s.Write(context.Background(), func(tx *Tx) error {
		return Create(tx, Lists, l)
	}); err != nil {
		t.Fatalf("create list: %v", err)
	}
	return l
}

func TestCreateAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	budget := 42.5
	l := &model.List{Name: "Groceries", Budget: &budget}
	if err := s.Write(ctx, func(tx *Tx) error { return Create(tx, Lists, l) }); err != nil {
		t.Fatalf("write: %v", err)
	}
	if l.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if l.CreatedAt.IsZero() || !l.CreatedAt.Equal(l.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", l.CreatedAt, l.UpdatedAt)
	}

	got, err := Get(ctx, s, Lists, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Groceries" {
		t.Errorf("name = %q", got.Name)
	}
	if got.Budget == nil || *got.Budget != 42.5 {
		t.Errorf("budget = %v", got.Budget)
	}
	if got.StoreLocation != nil {
		t.Errorf("store location = %v, want nil", got.StoreLocation)
	}
	if !got.CreatedAt.Equal(l.CreatedAt) {
		t.Errorf("created_at round trip = %v, want %v", got.CreatedAt, l.CreatedAt)
	}
}

func TestGetMissing(t *testing.T) {
	s := setupTestStore(t)
	_, err := Get(context.Background(), s, Lists, "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateBumpsUpdatedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	s := setupTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	l := createList(t, s, "Groceries", 0)

	now = now.Add(time.Minute)
	name := "Weekly"
	var updated *model.List
	err := s.Write(ctx, func(tx *Tx) error {
		var err error
		updated, err = Update(tx, Lists, l.ID, model.ListPatch{Name: &name})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Weekly" {
		t.Errorf("name = %q", updated.Name)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", updated.UpdatedAt, now)
	}
	if !updated.CreatedAt.Equal(l.CreatedAt) {
		t.Errorf("created_at changed: %v", updated.CreatedAt)
	}
}

func TestMarkDeleted(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	l := createList(t, s, "Groceries", 0)

	del := func(id string) error {
		return s.Write(ctx, func(tx *Tx) error { return MarkDeleted(tx, Lists, id) })
	}
	if err := del(l.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := del(l.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := del("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("delete missing err = %v", err)
	}

	if _, err := Get(ctx, s, Lists, l.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("get deleted err = %v", err)
	}
	all, err := From(Lists).IncludeDeleted().All(ctx, s)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 || all[0].DeletedAt == nil {
		t.Fatalf("expected one tombstone, got %+v", all)
	}

	name := "x"
	err = s.Write(ctx, func(tx *Tx) error {
		_, err := Update(tx, Lists, l.ID, model.ListPatch{Name: &name})
		return err
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("update deleted err = %v", err)
	}
}

func TestWriteRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var rolledBack error
	s.OnRollback(func(err error) { rolledBack = err })

	boom := errors.New("boom")
	err := s.Write(ctx, func(tx *Tx) error {
		if err := Create(tx, Lists, &model.List{Name: "A"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, apperr.ErrTransaction) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(rolledBack, boom) {
		t.Errorf("rollback hook got %v", rolledBack)
	}
	n, err := From(Lists).Count(ctx, s)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d after rollback, want 0", n)
	}
}

func TestForeignKeyFailureRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	err := s.Write(ctx, func(tx *Tx) error {
		if err := Create(tx, Lists, &model.List{Name: "A"}); err != nil {
			return err
		}
		return Create(tx, ListItems, &model.ListItem{ListID: "missing", Name: "Milk", Quantity: 1})
	})
	if err == nil {
		t.Fatal("expected foreign key error")
	}
	if n, _ := From(Lists).Count(ctx, s); n != 0 {
		t.Errorf("lists = %d, want 0", n)
	}
}

func TestQueryOrderingAndFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := createList(t, s, "A", 1)
	b := createList(t, s, "B", 0)
	c := createList(t, s, "C", 1)

	got, err := From(Lists).OrderBy(Asc("position")).All(ctx, s)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	want := []string{b.ID, a.ID, c.ID}
	for i, l := range got {
		if l.ID != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, l.Name, want[i])
		}
	}

	got, err = From(Lists).Where(OneOf("id", a.ID, c.ID)).OrderBy(Desc("name")).All(ctx, s)
	if err != nil {
		t.Fatalf("oneof: %v", err)
	}
	if len(got) != 2 || got[0].Name != "C" {
		t.Errorf("oneof = %+v", got)
	}

	none, err := From(Lists).Where(OneOf[string]("id")).All(ctx, s)
	if err != nil {
		t.Fatalf("empty oneof: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("empty oneof matched %d", len(none))
	}

	_, err = From(Lists).Where(Eq("name; DROP TABLE lists", "x")).All(ctx, s)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown column err = %v", err)
	}

	if _, err := From(Lists).Where(Eq("name", "Z")).First(ctx, s); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("first err = %v", err)
	}
}

func TestIterIsReExecutable(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createList(t, s, "A", 0)

	q := From(Lists).Iter(ctx, s)
	count := func() int {
		n := 0
		for _, err := range q {
			if err != nil {
				t.Fatalf("iter: %v", err)
			}
			n++
		}
		return n
	}
	if n := count(); n != 1 {
		t.Fatalf("first pass = %d", n)
	}
	createList(t, s, "B", 1)
	if n := count(); n != 2 {
		t.Fatalf("second pass = %d", n)
	}
}

func TestTimeRangePredicates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.Local)
	for i := range 3 {
		mp := &model.MealPlan{Date: day.AddDate(0, 0, i), MealType: model.MealDinner, Servings: 2}
		if err := s.Write(ctx, func(tx *Tx) error { return Create(tx, MealPlans, mp) }); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	got, err := From(MealPlans).
		Where(Gte("date", day.AddDate(0, 0, 1)), Lte("date", model.EndOfDay(day.AddDate(0, 0, 2)))).
		All(ctx, s)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d meal plans, want 2", len(got))
	}
	if !got[0].Date.Equal(day.AddDate(0, 0, 1)) {
		t.Errorf("date = %v", got[0].Date)
	}
}

func TestUpsertLastWriterWins(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	l := createList(t, s, "Local", 0)

	older := *l
	older.Name = "Older"
	older.UpdatedAt = l.UpdatedAt.Add(-time.Second)

	newer := *l
	newer.Name = "Newer"
	newer.UpdatedAt = l.UpdatedAt.Add(time.Second)

	fresh := model.List{Meta: model.Meta{ID: "remote-1", CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt}, Name: "Remote"}

	var applied []bool
	err := s.Write(ctx, func(tx *Tx) error {
		for _, rec := range []model.List{older, newer, fresh} {
			ok, err := Upsert(tx, Lists, &rec)
			if err != nil {
				return err
			}
			applied = append(applied, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if applied[0] || !applied[1] || !applied[2] {
		t.Errorf("applied = %v", applied)
	}
	got, _ := Get(ctx, s, Lists, l.ID)
	if got.Name != "Newer" {
		t.Errorf("name = %q, want Newer", got.Name)
	}
	if _, err := Get(ctx, s, Lists, "remote-1"); err != nil {
		t.Errorf("remote record missing: %v", err)
	}
}

func TestUpsertTombstoneWinsTie(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	l := createList(t, s, "Local", 0)

	tomb := *l
	at := l.UpdatedAt
	tomb.DeletedAt = &at
	err := s.Write(ctx, func(tx *Tx) error {
		ok, err := Upsert(tx, Lists, &tomb)
		if !ok {
			t.Error("tombstone was not applied")
		}
		return err
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := Get(ctx, s, Lists, l.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected list to be deleted, err = %v", err)
	}
}

func TestCommitHookEvents(t *testing.T) {
	var changes []Change
	s := setupTestStore(t, WithCommitHook(func(c Change) { changes = append(changes, c) }))
	ctx := context.Background()

	l := createList(t, s, "A", 0)
	err := s.Write(ctx, func(tx *Tx) error {
		if err := Create(tx, ListItems, &model.ListItem{ListID: l.ID, Name: "Milk", Quantity: 1}); err != nil {
			return err
		}
		return MarkDeleted(tx, Lists, l.ID)
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	// Read-only writes publish nothing.
	if err := s.Write(ctx, func(tx *Tx) error { return nil }); err != nil {
		t.Fatalf("empty write: %v", err)
	}

	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	ev := changes[1].Events
	if len(ev) != 2 || ev[0].Table != "list_items" || ev[0].Action != ActionCreated || ev[1].Action != ActionDeleted {
		t.Errorf("events = %+v", ev)
	}
	if tables := changes[1].Tables(); len(tables) != 2 || tables[0] != "list_items" || tables[1] != "lists" {
		t.Errorf("tables = %v", tables)
	}
}

func recv[T any](t *testing.T, sub *Subscription[T]) []T {
	t.Helper()
	select {
	case rs, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return rs
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result set")
		return nil
	}
}

func TestObserveDeliversAfterCommit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createList(t, s, "A", 0)

	sub, err := Observe(ctx, s, From(Lists).OrderBy(Asc("position")))
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer sub.Cancel()

	if rs := recv(t, sub); len(rs) != 1 {
		t.Fatalf("initial = %d", len(rs))
	}
	createList(t, s, "B", 1)
	if rs := recv(t, sub); len(rs) != 2 || rs[1].Name != "B" {
		t.Fatalf("after commit = %+v", rs)
	}
}

func TestObserveReplacesStaleResults(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sub, err := Observe(ctx, s, From(Lists))
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer sub.Cancel()

	createList(t, s, "A", 0)
	createList(t, s, "B", 1)
	createList(t, s, "C", 2)

	if rs := recv(t, sub); len(rs) != 3 {
		t.Fatalf("latest = %d, want 3", len(rs))
	}
	select {
	case rs := <-sub.C():
		t.Fatalf("unexpected extra delivery: %d", len(rs))
	default:
	}
}

func TestObserveIgnoresOtherTables(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	sub, err := Observe(ctx, s, From(Categories))
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer sub.Cancel()
	recv(t, sub)

	createList(t, s, "A", 0)
	select {
	case <-sub.C():
		t.Fatal("categories observer notified for a lists write")
	default:
	}
}

func TestObserveCancel(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := Observe(ctx, s, From(Lists))
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	recv(t, sub)

	cancel()
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected channel to close")
		}
	case <-time.After(time.Second):
		t.Fatal("context cancel did not close subscription")
	}
	sub.Cancel()
	sub.Cancel()

	createList(t, s, "A", 0)
	s.obsMu.RLock()
	n := len(s.observers)
	s.obsMu.RUnlock()
	if n != 0 {
		t.Errorf("observers = %d after cancel", n)
	}
}
