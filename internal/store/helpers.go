package store

import (
	"fmt"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/record"
)

// move returns a copy of s with the element at from moved to index to.
func move[T any](s []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(s) {
		return nil, apperr.Invalid("from", fmt.Sprintf("must be between 0 and %d", len(s)-1))
	}
	if to < 0 || to >= len(s) {
		return nil, apperr.Invalid("to", fmt.Sprintf("must be between 0 and %d", len(s)-1))
	}
	out := make([]T, 0, len(s))
	out = append(out, s[:from]...)
	out = append(out, s[from+1:]...)
	out = append(out[:to], append([]T{s[from]}, out[to:]...)...)
	return out, nil
}

// renumber gives recs dense positions 0..n-1 in slice order, writing only
// the records whose position changed.
func renumber[T any](tx *record.Tx, t *record.Table[T], recs []T, pos func(*T) *int) error {
	for i := range recs {
		if *pos(&recs[i]) == i {
			continue
		}
		n := i
		if _, err := record.Update(tx, t, t.Meta(&recs[i]).ID, record.PatchFunc[T](func(r *T) { *pos(r) = n })); err != nil {
			return fmt.Errorf("renumber %s: %w", t.Name(), err)
		}
		*pos(&recs[i]) = i
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
