package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/dukerupert/larder/internal/apperr"
)

func tableExists(t *testing.T, dbPath string, version int64, table string) bool {
	t.Helper()
	db, err := OpenVersion(dbPath, version)
	if err != nil {
		t.Fatalf("open v%d: %v", version, err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestOpenMemory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"lists", "list_items", "pantry_items", "categories", "recipes", "recipe_ingredients", "meal_plans", "kv_entries"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n); err != nil {
			t.Fatalf("query: %v", err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestAdditiveMigrationOneToTwo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "larder.db")

	if tableExists(t, path, 1, "meal_plans") {
		t.Fatal("meal_plans should not exist at version 1")
	}
	if !tableExists(t, path, 2, "meal_plans") {
		t.Fatal("meal_plans should exist after migrating to version 2")
	}
}

func TestSchemaErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "larder.db")

	if _, err := OpenVersion(path, LatestVersion+1); !errors.Is(err, apperr.ErrSchema) {
		t.Fatalf("future version: expected ErrSchema, got %v", err)
	}

	db, err := OpenVersion(path, 2)
	if err != nil {
		t.Fatalf("open v2: %v", err)
	}
	db.Close()

	_, err = OpenVersion(path, 1)
	var serr *apperr.SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("downgrade: expected *SchemaError, got %v", err)
	}
	if serr.Current != 2 || serr.Requested != 1 {
		t.Errorf("schema error = %+v", serr)
	}
}
