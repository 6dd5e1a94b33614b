package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/model"
)

func TestSeedDefaultsOnce(t *testing.T) {
	ts := setupTestStores(t)
	ctx := context.Background()

	seeded, err := ts.categories.SeedDefaults(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !seeded {
		t.Fatal("first seed should create categories")
	}
	cats, err := ts.categories.Categories(ctx)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != len(model.DefaultCategories) || len(cats) != 14 {
		t.Fatalf("categories = %d, want 14", len(cats))
	}
	for i, c := range cats {
		if c.Name != model.DefaultCategories[i].Name || c.Position != i || c.IsCustom {
			t.Errorf("category[%d] = %+v", i, c)
		}
	}
	if cats[0].ID != "category-produce" {
		t.Errorf("produce id = %q", cats[0].ID)
	}

	seeded, err = ts.categories.SeedDefaults(ctx)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if seeded {
		t.Error("second seed should be a no-op")
	}
}

func TestDefaultCategoryID(t *testing.T) {
	tests := map[string]string{
		"Produce":        "category-produce",
		"Meat & Seafood": "category-meat-seafood",
		"Personal Care":  "category-personal-care",
	}
	for name, want := range tests {
		if got := DefaultCategoryID(name); got != want {
			t.Errorf("DefaultCategoryID(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestCustomCategories(t *testing.T) {
	ts := setupTestStores(t)
	ctx := context.Background()
	if _, err := ts.categories.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, err := ts.categories.CreateCategory(ctx, model.NewCategory{Name: "Pet Supplies", Icon: "🐾"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !c.IsCustom || c.Position != 14 {
		t.Errorf("custom category = %+v", c)
	}

	if err := ts.categories.DeleteCategory(ctx, "category-produce"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("delete default err = %v, want validation error", err)
	}

	if _, err := ts.categories.ReorderCategories(ctx, 14, 0); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if err := ts.categories.DeleteCategory(ctx, c.ID); err != nil {
		t.Fatalf("delete custom: %v", err)
	}
	cats, _ := ts.categories.Categories(ctx)
	if len(cats) != 14 || cats[0].Name != "Produce" || cats[0].Position != 0 {
		t.Errorf("after delete first = %+v (of %d)", cats[0], len(cats))
	}
}
