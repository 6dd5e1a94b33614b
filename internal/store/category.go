package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/record"
)

type CategoryStore struct {
	rs *record.Store
}

func NewCategoryStore(rs *record.Store) *CategoryStore {
	return &CategoryStore{rs: rs}
}

func categoriesQuery() record.Query[model.Category] {
	return record.From(record.Categories).OrderBy(record.Asc("position"))
}

func categoryPosition(c *model.Category) *int { return &c.Position }

// DefaultCategoryID derives a stable id from a default category name so that
// every device seeds the same records and sync does not duplicate them.
func DefaultCategoryID(name string) string {
	var b strings.Builder
	b.WriteString("category-")
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
		} else if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// SeedDefaults creates the default categories the first time it runs
// against an empty table. It reports whether anything was created.
func (s *CategoryStore) SeedDefaults(ctx context.Context) (bool, error) {
	seeded := false
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		n, err := record.From(record.Categories).IncludeDeleted().Count(ctx, tx)
		if err != nil || n > 0 {
			return err
		}
		for i, d := range model.DefaultCategories {
			c := &model.Category{
				Meta:     model.Meta{ID: DefaultCategoryID(d.Name)},
				Name:     d.Name,
				Icon:     d.Icon,
				Color:    d.Color,
				Position: i,
			}
			if err := record.Create(tx, record.Categories, c); err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seed categories: %w", err)
	}
	return seeded, nil
}

func (s *CategoryStore) Categories(ctx context.Context) ([]model.Category, error) {
	cats, err := categoriesQuery().All(ctx, s.rs)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (s *CategoryStore) CreateCategory(ctx context.Context, in model.NewCategory) (*model.Category, error) {
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	c := &model.Category{Name: in.Name, Icon: in.Icon, Color: in.Color, IsCustom: true}
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		n, err := record.From(record.Categories).Count(ctx, tx)
		if err != nil {
			return err
		}
		c.Position = n
		return record.Create(tx, record.Categories, c)
	})
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *CategoryStore) UpdateCategory(ctx context.Context, id string, p model.CategoryPatch) (*model.Category, error) {
	if err := apperr.Validate(p); err != nil {
		return nil, err
	}
	var c *model.Category
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		var err error
		c, err = record.Update(tx, record.Categories, id, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	return c, nil
}

// DeleteCategory removes a user-created category. Seeded defaults cannot be deleted.
func (s *CategoryStore) DeleteCategory(ctx context.Context, id string) error {
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		c, err := record.Get(ctx, tx, record.Categories, id)
		if err != nil {
			return err
		}
		if !c.IsCustom {
			return apperr.Invalid("id", "default categories cannot be deleted")
		}
		if err := record.MarkDeleted(tx, record.Categories, id); err != nil {
			return err
		}
		rest, err := categoriesQuery().All(ctx, tx)
		if err != nil {
			return err
		}
		return renumber(tx, record.Categories, rest, categoryPosition)
	})
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func (s *CategoryStore) ReorderCategories(ctx context.Context, from, to int) ([]model.Category, error) {
	var out []model.Category
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		cats, err := categoriesQuery().All(ctx, tx)
		if err != nil {
			return err
		}
		out, err = move(cats, from, to)
		if err != nil {
			return err
		}
		return renumber(tx, record.Categories, out, categoryPosition)
	})
	if err != nil {
		return nil, fmt.Errorf("reorder categories: %w", err)
	}
	return out, nil
}
