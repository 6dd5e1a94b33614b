// Package snapshot exports the whole record store as one document, merges
// two such documents and applies one back, keeping the newest version of
// every record.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/record"
)

// Snapshot holds every record of every table, tombstones included.
type Snapshot struct {
	SchemaVersion     int64                    `json:"schema_version"`
	ExportedAt        time.Time                `json:"exported_at"`
	Lists             []model.List             `json:"lists"`
	ListItems         []model.ListItem         `json:"list_items"`
	PantryItems       []model.PantryItem       `json:"pantry_items"`
	Categories        []model.Category         `json:"categories"`
	Recipes           []model.Recipe           `json:"recipes"`
	RecipeIngredients []model.RecipeIngredient `json:"recipe_ingredients"`
	MealPlans         []model.MealPlan         `json:"meal_plans"`
}

// Len returns the total number of records.
func (s *Snapshot) Len() int {
	return len(s.Lists) + len(s.ListItems) + len(s.PantryItems) + len(s.Categories) +
		len(s.Recipes) + len(s.RecipeIngredients) + len(s.MealPlans)
}

func all[T any](ctx context.Context, r record.Reader, t *record.Table[T], dst *[]T) error {
	recs, err := record.From(t).IncludeDeleted().All(ctx, r)
	if err != nil {
		return fmt.Errorf("export %s: %w", t.Name(), err)
	}
	*dst = recs
	return nil
}

// Export reads every table in one transaction.
func Export(ctx context.Context, rs *record.Store) (*Snapshot, error) {
	snap := &Snapshot{SchemaVersion: database.LatestVersion, ExportedAt: rs.Now()}
	err := rs.Read(ctx, func(r record.Reader) error {
		if err := all(ctx, r, record.Lists, &snap.Lists); err != nil {
			return err
		}
		if err := all(ctx, r, record.ListItems, &snap.ListItems); err != nil {
			return err
		}
		if err := all(ctx, r, record.PantryItems, &snap.PantryItems); err != nil {
			return err
		}
		if err := all(ctx, r, record.Categories, &snap.Categories); err != nil {
			return err
		}
		if err := all(ctx, r, record.Recipes, &snap.Recipes); err != nil {
			return err
		}
		if err := all(ctx, r, record.RecipeIngredients, &snap.RecipeIngredients); err != nil {
			return err
		}
		return all(ctx, r, record.MealPlans, &snap.MealPlans)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func upsertAll[T any](tx *record.Tx, t *record.Table[T], recs []T) (int, error) {
	n := 0
	for i := range recs {
		ok, err := record.Upsert(tx, t, &recs[i])
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Apply imports snap into rs in one transaction, parents before children.
// Each record only replaces a stored one that is older. It returns the
// number of records written.
func Apply(ctx context.Context, rs *record.Store, snap *Snapshot) (int, error) {
	if snap.SchemaVersion > database.LatestVersion {
		return 0, &apperr.SchemaError{
			Current:   database.LatestVersion,
			Requested: snap.SchemaVersion,
			Reason:    "snapshot was written by a newer schema",
		}
	}
	total := 0
	err := rs.Write(ctx, func(tx *record.Tx) error {
		steps := []func() (int, error){
			func() (int, error) { return upsertAll(tx, record.Lists, snap.Lists) },
			func() (int, error) { return upsertAll(tx, record.ListItems, snap.ListItems) },
			func() (int, error) { return upsertAll(tx, record.PantryItems, snap.PantryItems) },
			func() (int, error) { return upsertAll(tx, record.Categories, snap.Categories) },
			func() (int, error) { return upsertAll(tx, record.Recipes, snap.Recipes) },
			func() (int, error) { return upsertAll(tx, record.RecipeIngredients, snap.RecipeIngredients) },
			func() (int, error) { return upsertAll(tx, record.MealPlans, snap.MealPlans) },
		}
		for _, step := range steps {
			n, err := step()
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("apply snapshot: %w", err)
	}
	return total, nil
}

func mergeRecords[T any](t *record.Table[T], a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	index := make(map[string]int, len(a))
	for i := range a {
		index[t.Meta(&a[i]).ID] = len(out)
		out = append(out, a[i])
	}
	for i := range b {
		id := t.Meta(&b[i]).ID
		j, ok := index[id]
		if !ok {
			index[id] = len(out)
			out = append(out, b[i])
			continue
		}
		if record.Newer(*t.Meta(&b[i]), *t.Meta(&out[j])) {
			out[j] = b[i]
		}
	}
	return out
}

// Merge combines two snapshots record by record: the later UpdatedAt wins,
// a tombstone wins a tie, and otherwise a's version is kept.
func Merge(a, b *Snapshot) *Snapshot {
	version := a.SchemaVersion
	if b.SchemaVersion > version {
		version = b.SchemaVersion
	}
	exported := a.ExportedAt
	if b.ExportedAt.After(exported) {
		exported = b.ExportedAt
	}
	return &Snapshot{
		SchemaVersion:     version,
		ExportedAt:        exported,
		Lists:             mergeRecords(record.Lists, a.Lists, b.Lists),
		ListItems:         mergeRecords(record.ListItems, a.ListItems, b.ListItems),
		PantryItems:       mergeRecords(record.PantryItems, a.PantryItems, b.PantryItems),
		Categories:        mergeRecords(record.Categories, a.Categories, b.Categories),
		Recipes:           mergeRecords(record.Recipes, a.Recipes, b.Recipes),
		RecipeIngredients: mergeRecords(record.RecipeIngredients, a.RecipeIngredients, b.RecipeIngredients),
		MealPlans:         mergeRecords(record.MealPlans, a.MealPlans, b.MealPlans),
	}
}
