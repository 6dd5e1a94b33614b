package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/kv"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/record"
)

var predefinedTemplates = []model.Template{
	{
		ID: "predefined-weekly-groceries", Name: "Weekly Groceries", Icon: "🛒", Color: "#007AFF",
		Description: "The staples most households buy every week",
		Items: []model.TemplateItem{
			{Name: "Milk", Quantity: 1, Unit: "gallon", Category: "Dairy"},
			{Name: "Eggs", Quantity: 12, Category: "Dairy"},
			{Name: "Bread", Quantity: 1, Unit: "loaf", Category: "Bakery"},
			{Name: "Bananas", Quantity: 6, Category: "Produce"},
			{Name: "Chicken Breast", Quantity: 2, Unit: "lb", Category: "Meat & Seafood"},
			{Name: "Rice", Quantity: 1, Unit: "bag", Category: "Pantry"},
			{Name: "Coffee", Quantity: 1, Unit: "bag", Category: "Beverages"},
		},
	},
	{
		ID: "predefined-bbq-party", Name: "BBQ Party", Icon: "🍖", Color: "#FF3B30",
		Description: "Everything for a backyard cookout",
		Items: []model.TemplateItem{
			{Name: "Burger Patties", Quantity: 12, Category: "Meat & Seafood"},
			{Name: "Hot Dogs", Quantity: 2, Unit: "pack", Category: "Meat & Seafood"},
			{Name: "Buns", Quantity: 2, Unit: "pack", Category: "Bakery"},
			{Name: "Ketchup", Quantity: 1, Category: "Condiments"},
			{Name: "Mustard", Quantity: 1, Category: "Condiments"},
			{Name: "Chips", Quantity: 3, Unit: "bag", Category: "Snacks"},
			{Name: "Soda", Quantity: 2, Unit: "case", Category: "Beverages"},
			{Name: "Charcoal", Quantity: 1, Unit: "bag", Category: "Household"},
		},
	},
	{
		ID: "predefined-breakfast", Name: "Breakfast Essentials", Icon: "🥞", Color: "#FF9500",
		Description: "A week of breakfasts",
		Items: []model.TemplateItem{
			{Name: "Eggs", Quantity: 12, Category: "Dairy"},
			{Name: "Bacon", Quantity: 1, Unit: "lb", Category: "Meat & Seafood"},
			{Name: "Cereal", Quantity: 1, Unit: "box", Category: "Pantry"},
			{Name: "Orange Juice", Quantity: 1, Unit: "carton", Category: "Beverages"},
			{Name: "Yogurt", Quantity: 4, Category: "Dairy"},
			{Name: "Berries", Quantity: 2, Unit: "pint", Category: "Produce"},
		},
	},
	{
		ID: "predefined-baking", Name: "Baking Day", Icon: "🧁", Color: "#AF52DE",
		Description: "Pantry basics for baking",
		Items: []model.TemplateItem{
			{Name: "Flour", Quantity: 5, Unit: "lb", Category: "Pantry"},
			{Name: "Sugar", Quantity: 4, Unit: "lb", Category: "Pantry"},
			{Name: "Butter", Quantity: 2, Unit: "lb", Category: "Dairy"},
			{Name: "Eggs", Quantity: 12, Category: "Dairy"},
			{Name: "Baking Powder", Quantity: 1, Category: "Pantry"},
			{Name: "Vanilla", Quantity: 1, Unit: "bottle", Category: "Spices"},
		},
	},
	{
		ID: "predefined-cleaning", Name: "Cleaning Supplies", Icon: "🧽", Color: "#8E8E93",
		Description: "Restock the cleaning cupboard",
		Items: []model.TemplateItem{
			{Name: "Paper Towels", Quantity: 1, Unit: "pack", Category: "Household"},
			{Name: "Dish Soap", Quantity: 1, Category: "Household"},
			{Name: "Laundry Detergent", Quantity: 1, Category: "Household"},
			{Name: "Trash Bags", Quantity: 1, Unit: "box", Category: "Household"},
			{Name: "Sponges", Quantity: 1, Unit: "pack", Category: "Household"},
		},
	},
}

// PredefinedTemplates returns copies of the built-in templates.
func PredefinedTemplates() []model.Template {
	out := make([]model.Template, len(predefinedTemplates))
	for i, t := range predefinedTemplates {
		t.Predefined = true
		t.Items = slices.Clone(t.Items)
		out[i] = t
	}
	return out
}

func isPredefined(id string) bool {
	return slices.ContainsFunc(predefinedTemplates, func(t model.Template) bool { return t.ID == id })
}

func immutable(id string) error {
	return fmt.Errorf("template %q: %w", id, apperr.ErrPredefinedImmutable)
}

// TemplateStore merges the built-in templates with the user's own, which are
// persisted as one JSON document.
type TemplateStore struct {
	kv  *kv.Store
	rs  *record.Store
	now func() time.Time
}

func NewTemplateStore(kv *kv.Store, rs *record.Store) *TemplateStore {
	return &TemplateStore{kv: kv, rs: rs, now: rs.Now}
}

func (s *TemplateStore) userTemplates(ctx context.Context) ([]model.Template, error) {
	return load[model.Template](ctx, s.kv, kv.KeyTemplates)
}

// Templates returns the predefined templates followed by the user's.
func (s *TemplateStore) Templates(ctx context.Context) ([]model.Template, error) {
	user, err := s.userTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("get templates: %w", err)
	}
	return append(PredefinedTemplates(), user...), nil
}

func (s *TemplateStore) Template(ctx context.Context, id string) (*model.Template, error) {
	all, err := s.Templates(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, apperr.NotFound("template", id)
}

func (s *TemplateStore) CreateTemplate(ctx context.Context, in model.NewTemplate) (*model.Template, error) {
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	now := s.now()
	t := model.Template{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Icon:        in.Icon,
		Color:       in.Color,
		Items:       slices.Clone(in.Items),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Items == nil {
		t.Items = []model.TemplateItem{}
	}
	_, err := kv.Update(ctx, s.kv, kv.KeyTemplates, func(list *[]model.Template) error {
		*list = append(*list, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return &t, nil
}

// UpdateTemplate changes a user template. Predefined templates are rejected
// before anything is read or written.
func (s *TemplateStore) UpdateTemplate(ctx context.Context, id string, p model.TemplatePatch) (*model.Template, error) {
	if isPredefined(id) {
		return nil, immutable(id)
	}
	if err := apperr.Validate(p); err != nil {
		return nil, err
	}
	var updated *model.Template
	_, err := kv.Update(ctx, s.kv, kv.KeyTemplates, func(list *[]model.Template) error {
		for i := range *list {
			t := &(*list)[i]
			if t.ID == id {
				p.Apply(t)
				t.UpdatedAt = s.now()
				cp := *t
				updated = &cp
				return nil
			}
		}
		return apperr.NotFound("template", id)
	})
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return updated, nil
}

func (s *TemplateStore) DeleteTemplate(ctx context.Context, id string) error {
	if isPredefined(id) {
		return immutable(id)
	}
	_, err := kv.Update(ctx, s.kv, kv.KeyTemplates, func(list *[]model.Template) error {
		i := slices.IndexFunc(*list, func(t model.Template) bool { return t.ID == id })
		if i < 0 {
			return apperr.NotFound("template", id)
		}
		*list = slices.Delete(*list, i, i+1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

// CreateListFromTemplate creates a new list holding the template's items.
// An empty name uses the template's name.
func (s *TemplateStore) CreateListFromTemplate(ctx context.Context, templateID, name string) (*model.List, []model.ListItem, error) {
	t, err := s.Template(ctx, templateID)
	if err != nil {
		return nil, nil, err
	}
	if name == "" {
		name = t.Name
	}
	l := &model.List{Name: name, Icon: t.Icon, Color: t.Color}
	items := make([]model.ListItem, len(t.Items))
	for i, ti := range t.Items {
		qty := ti.Quantity
		if qty == 0 {
			qty = 1
		}
		items[i] = model.ListItem{Name: ti.Name, Quantity: qty, Unit: ti.Unit, Category: ti.Category}
	}
	err = s.rs.Write(ctx, func(tx *record.Tx) error {
		n, err := record.From(record.Lists).Where(record.Eq("archived", false)).Count(ctx, tx)
		if err != nil {
			return err
		}
		l.Position = n
		return createListWithItems(tx, l, items)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create list from template: %w", err)
	}
	return l, items, nil
}

// SaveListAsTemplate stores a list's current items as a new user template.
func (s *TemplateStore) SaveListAsTemplate(ctx context.Context, listID, name string) (*model.Template, error) {
	l, err := record.Get(ctx, s.rs, record.Lists, listID)
	if err != nil {
		return nil, err
	}
	items, err := listItems(ctx, s.rs, listID)
	if err != nil {
		return nil, fmt.Errorf("save list as template: %w", err)
	}
	if name == "" {
		name = l.Name
	}
	in := model.NewTemplate{Name: name, Icon: l.Icon, Color: l.Color, Items: make([]model.TemplateItem, len(items))}
	for i, it := range items {
		in.Items[i] = model.TemplateItem{Name: it.Name, Quantity: it.Quantity, Unit: it.Unit, Category: it.Category}
	}
	return s.CreateTemplate(ctx, in)
}
