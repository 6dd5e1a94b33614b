package record

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/dukerupert/larder/internal/apperr"
)

type op int

const (
	opEq op = iota
	opNe
	opGte
	opLte
	opOneOf
	opIsNull
	opNotNull
)

// Predicate filters rows on one column.
type Predicate struct {
	col  string
	op   op
	args []any
}

func Eq(col string, v any) Predicate  { return Predicate{col: col, op: opEq, args: []any{v}} }
func Ne(col string, v any) Predicate  { return Predicate{col: col, op: opNe, args: []any{v}} }
func Gte(col string, v any) Predicate { return Predicate{col: col, op: opGte, args: []any{v}} }
func Lte(col string, v any) Predicate { return Predicate{col: col, op: opLte, args: []any{v}} }
func IsNull(col string) Predicate     { return Predicate{col: col, op: opIsNull} }
func NotNull(col string) Predicate    { return Predicate{col: col, op: opNotNull} }

// OneOf matches any of vs. An empty set matches nothing.
func OneOf[V any](col string, vs ...V) Predicate {
	args := make([]any, len(vs))
	for i, v := range vs {
		args[i] = v
	}
	return Predicate{col: col, op: opOneOf, args: args}
}

func (p Predicate) sql() (string, []any) {
	args := make([]any, len(p.args))
	for i, a := range p.args {
		args[i] = normalizeArg(a)
	}
	switch p.op {
	case opEq:
		return p.col + " = ?", args
	case opNe:
		return p.col + " <> ?", args
	case opGte:
		return p.col + " >= ?", args
	case opLte:
		return p.col + " <= ?", args
	case opIsNull:
		return p.col + " IS NULL", nil
	case opNotNull:
		return p.col + " IS NOT NULL", nil
	case opOneOf:
		if len(args) == 0 {
			return "1 = 0", nil
		}
		return p.col + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ") + ")", args
	}
	return "", nil
}

// Sort orders results on one column.
type Sort struct {
	col  string
	desc bool
}

func Asc(col string) Sort  { return Sort{col: col} }
func Desc(col string) Sort { return Sort{col: col, desc: true} }

// Query is an immutable, re-executable description of a filtered, sorted
// read over one table. Soft-deleted rows are excluded unless IncludeDeleted
// is set. Ties are broken by insertion order.
type Query[T any] struct {
	table   *Table[T]
	where   []Predicate
	order   []Sort
	deleted bool
	limit   int
}

// From starts a query over t.
func From[T any](t *Table[T]) Query[T] {
	return Query[T]{table: t}
}

func (q Query[T]) Where(p ...Predicate) Query[T] {
	q.where = append(append([]Predicate(nil), q.where...), p...)
	return q
}

func (q Query[T]) OrderBy(s ...Sort) Query[T] {
	q.order = append(append([]Sort(nil), q.order...), s...)
	return q
}

func (q Query[T]) IncludeDeleted() Query[T] {
	q.deleted = true
	return q
}

func (q Query[T]) Limit(n int) Query[T] {
	q.limit = n
	return q
}

// Table returns the table name the query reads.
func (q Query[T]) Table() string { return q.table.name }

func (q Query[T]) build(selectList string) (string, []any, error) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT " + selectList + " FROM " + q.table.name)

	var conds []string
	if !q.deleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	for _, p := range q.where {
		if !q.table.allowed[p.col] {
			return "", nil, apperr.Invalid(p.col, fmt.Sprintf("is not a column of %s", q.table.name))
		}
		cond, a := p.sql()
		conds = append(conds, cond)
		args = append(args, a...)
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	if selectList != "COUNT(*)" {
		b.WriteString(" ORDER BY ")
		for _, s := range q.order {
			if !q.table.allowed[s.col] {
				return "", nil, apperr.Invalid(s.col, fmt.Sprintf("is not a column of %s", q.table.name))
			}
			b.WriteString(s.col)
			if s.desc {
				b.WriteString(" DESC")
			} else {
				b.WriteString(" ASC")
			}
			b.WriteString(", ")
		}
		b.WriteString("rowid ASC")
		if q.limit > 0 {
			fmt.Fprintf(&b, " LIMIT %d", q.limit)
		}
	}
	return b.String(), args, nil
}

// All runs the query and returns every matching record.
func (q Query[T]) All(ctx context.Context, r Reader) ([]T, error) {
	out := []T{}
	for rec, err := range q.Iter(ctx, r) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Iter runs the query lazily. Each call re-executes it. The underlying
// connection is held until iteration stops, so do not Write from inside the loop.
func (q Query[T]) Iter(ctx context.Context, r Reader) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		query, args, err := q.build(q.table.selectCols())
		if err != nil {
			yield(zero, err)
			return
		}
		rows, err := r.QueryContext(ctx, query, args...)
		if err != nil {
			yield(zero, fmt.Errorf("query %s: %w", q.table.name, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := q.table.scan(rows)
			if err != nil {
				yield(zero, fmt.Errorf("scan %s: %w", q.table.name, err))
				return
			}
			if !yield(*rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, fmt.Errorf("iterate %s: %w", q.table.name, err))
		}
	}
}

// First returns the first matching record or an ErrNotFound error.
func (q Query[T]) First(ctx context.Context, r Reader) (*T, error) {
	for rec, err := range q.Limit(1).Iter(ctx, r) {
		if err != nil {
			return nil, err
		}
		return &rec, nil
	}
	return nil, apperr.NotFound(q.table.name, "first")
}

// Count returns the number of matching records.
func (q Query[T]) Count(ctx context.Context, r Reader) (int, error) {
	query, args, err := q.build("COUNT(*)")
	if err != nil {
		return 0, err
	}
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.table.name, err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("scan count: %w", err)
		}
	}
	return n, rows.Err()
}

// Get returns the live record with id or an ErrNotFound error.
func Get[T any](ctx context.Context, r Reader, t *Table[T], id string) (*T, error) {
	rec, err := From(t).Where(Eq("id", id)).First(ctx, r)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound(t.name, id)
	}
	return rec, err
}
