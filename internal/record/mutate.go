package record

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/model"
)

// Patch changes only the fields it carries.
type Patch[T any] interface {
	Apply(*T)
}

// PatchFunc adapts a plain function to Patch.
type PatchFunc[T any] func(*T)

func (f PatchFunc[T]) Apply(rec *T) { f(rec) }

func (t *Table[T]) placeholders() string {
	return strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)+4), ", ")
}

func (t *Table[T]) args(rec *T) []any {
	m := t.meta(rec)
	args := append([]any{m.ID}, t.values(rec)...)
	return append(args, m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli(), nullMillis(m.DeletedAt))
}

// Create inserts rec, assigning an id when empty and stamping created/updated.
func Create[T any](tx *Tx, t *Table[T], rec *T) error {
	m := t.meta(rec)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := tx.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.DeletedAt = nil

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, t.selectCols(), t.placeholders())
	if _, err := tx.exec(query, t.args(rec)...); err != nil {
		return fmt.Errorf("insert %s: %w", t.name, err)
	}
	tx.record(t.name, ActionCreated, m.ID)
	return nil
}

func (t *Table[T]) update(tx *Tx, rec *T) error {
	sets := make([]string, 0, len(t.columns)+2)
	for _, c := range t.columns {
		sets = append(sets, c+" = ?")
	}
	sets = append(sets, "updated_at = ?", "deleted_at = ?")

	m := t.meta(rec)
	args := append(t.values(rec), m.UpdatedAt.UnixMilli(), nullMillis(m.DeletedAt), m.ID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.name, strings.Join(sets, ", "))
	if _, err := tx.exec(query, args...); err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	return nil
}

// Update applies p to the live record id and bumps its updated_at.
func Update[T any](tx *Tx, t *Table[T], id string, p Patch[T]) (*T, error) {
	rec, err := Get(tx.ctx, tx, t, id)
	if err != nil {
		return nil, err
	}
	p.Apply(rec)
	m := t.meta(rec)
	m.ID = id
	m.UpdatedAt = tx.Now()
	if err := t.update(tx, rec); err != nil {
		return nil, err
	}
	tx.record(t.name, ActionUpdated, id)
	return rec, nil
}

func getAny[T any](tx *Tx, t *Table[T], id string) (*T, error) {
	rec, err := From(t).IncludeDeleted().Where(Eq("id", id)).First(tx.ctx, tx)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound(t.name, id)
	}
	return rec, err
}

// MarkDeleted soft-deletes id. Deleting an already deleted record is a no-op.
func MarkDeleted[T any](tx *Tx, t *Table[T], id string) error {
	rec, err := getAny(tx, t, id)
	if err != nil {
		return err
	}
	m := t.meta(rec)
	if m.DeletedAt != nil {
		return nil
	}
	now := tx.Now()
	m.UpdatedAt = now
	m.DeletedAt = &now
	if err := t.update(tx, rec); err != nil {
		return err
	}
	tx.record(t.name, ActionDeleted, id)
	return nil
}

// MarkDeletedWhere soft-deletes every live record matching preds and returns
// how many were deleted.
func MarkDeletedWhere[T any](tx *Tx, t *Table[T], preds ...Predicate) (int, error) {
	recs, err := From(t).Where(preds...).All(tx.ctx, tx)
	if err != nil {
		return 0, err
	}
	for i := range recs {
		if err := MarkDeleted(tx, t, t.meta(&recs[i]).ID); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}

// Upsert imports rec keeping the newer version of the row. An unknown id is
// inserted as is. A known id is replaced when rec was updated later, or at
// the same instant when rec is a tombstone and the stored row is not.
// Upsert reports whether rec was written.
func Upsert[T any](tx *Tx, t *Table[T], rec *T) (bool, error) {
	in := t.meta(rec)
	if in.ID == "" {
		return false, apperr.Invalid("id", "is required")
	}
	existing, err := getAny(tx, t, in.ID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return false, err
	default:
		if !Newer(*in, *t.meta(existing)) {
			return false, nil
		}
	}

	sets := make([]string, 0, len(t.columns)+3)
	for _, c := range t.columns {
		sets = append(sets, c+" = excluded."+c)
	}
	sets = append(sets, "created_at = excluded.created_at", "updated_at = excluded.updated_at", "deleted_at = excluded.deleted_at")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		t.name, t.selectCols(), t.placeholders(), strings.Join(sets, ", "))
	if _, err := tx.exec(query, t.args(rec)...); err != nil {
		return false, fmt.Errorf("upsert %s: %w", t.name, err)
	}

	action := ActionUpdated
	switch {
	case in.DeletedAt != nil:
		action = ActionDeleted
	case existing == nil:
		action = ActionCreated
	}
	tx.record(t.name, action, in.ID)
	return true, nil
}

// Newer reports whether version a of a record should replace version b.
func Newer(a, b model.Meta) bool {
	au, bu := a.UpdatedAt.UnixMilli(), b.UpdatedAt.UnixMilli()
	if au != bu {
		return au > bu
	}
	return a.Deleted() && !b.Deleted()
}
