package record

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/dukerupert/larder/internal/model"
)

// Table describes how one entity type maps onto its SQLite table. The id and
// the created_at/updated_at/deleted_at columns are handled generically; a
// Table lists only the domain columns in between.
type Table[T any] struct {
	name    string
	columns []string
	meta    func(*T) *model.Meta
	values  func(*T) []any
	dests   func(*T) []any
	allowed map[string]bool
}

func newTable[T any](name string, columns []string, meta func(*T) *model.Meta, values, dests func(*T) []any) *Table[T] {
	allowed := map[string]bool{"id": true, "created_at": true, "updated_at": true, "deleted_at": true}
	for _, c := range columns {
		allowed[c] = true
	}
	return &Table[T]{name: name, columns: columns, meta: meta, values: values, dests: dests, allowed: allowed}
}

// Name returns the SQL table name.
func (t *Table[T]) Name() string { return t.name }

// Meta returns the bookkeeping fields of rec.
func (t *Table[T]) Meta(rec *T) *model.Meta { return t.meta(rec) }

func (t *Table[T]) selectCols() string {
	cols := "id"
	for _, c := range t.columns {
		cols += ", " + c
	}
	return cols + ", created_at, updated_at, deleted_at"
}

func (t *Table[T]) scan(s interface{ Scan(...any) error }) (*T, error) {
	var rec T
	m := t.meta(&rec)
	dests := append([]any{&m.ID}, t.dests(&rec)...)
	dests = append(dests, (*millis)(&m.CreatedAt), (*millis)(&m.UpdatedAt), nullMillisDest{&m.DeletedAt})
	if err := s.Scan(dests...); err != nil {
		return nil, err
	}
	return &rec, nil
}

// millis stores a time.Time as unix milliseconds so range predicates compare numerically.
type millis time.Time

func (m millis) Value() (driver.Value, error) {
	return time.Time(m).UnixMilli(), nil
}

func (m *millis) Scan(src any) error {
	v, ok := src.(int64)
	if !ok {
		return fmt.Errorf("scan millis: unexpected %T", src)
	}
	*m = millis(time.UnixMilli(v))
	return nil
}

type nullMillisDest struct{ p **time.Time }

func (n nullMillisDest) Scan(src any) error {
	if src == nil {
		*n.p = nil
		return nil
	}
	v, ok := src.(int64)
	if !ok {
		return fmt.Errorf("scan nullable millis: unexpected %T", src)
	}
	t := time.UnixMilli(v)
	*n.p = &t
	return nil
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

// normalizeArg converts time arguments to the stored millisecond form.
func normalizeArg(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UnixMilli()
	case *time.Time:
		return nullMillis(x)
	default:
		return v
	}
}

var Lists = newTable("lists",
	[]string{"name", "icon", "color", "archived", "position", "completed_at", "store_location", "budget"},
	func(l *model.List) *model.Meta { return &l.Meta },
	func(l *model.List) []any {
		return []any{l.Name, l.Icon, l.Color, l.Archived, l.Position, nullMillis(l.CompletedAt), l.StoreLocation, l.Budget}
	},
	func(l *model.List) []any {
		return []any{&l.Name, &l.Icon, &l.Color, &l.Archived, &l.Position, nullMillisDest{&l.CompletedAt}, &l.StoreLocation, &l.Budget}
	},
)

var ListItems = newTable("list_items",
	[]string{"list_id", "pantry_item_id", "name", "quantity", "unit", "category", "checked", "position", "notes", "price", "image_ref", "checked_at"},
	func(i *model.ListItem) *model.Meta { return &i.Meta },
	func(i *model.ListItem) []any {
		return []any{i.ListID, i.PantryItemID, i.Name, i.Quantity, i.Unit, i.Category, i.Checked, i.Position, i.Notes, i.Price, i.ImageRef, nullMillis(i.CheckedAt)}
	},
	func(i *model.ListItem) []any {
		return []any{&i.ListID, &i.PantryItemID, &i.Name, &i.Quantity, &i.Unit, &i.Category, &i.Checked, &i.Position, &i.Notes, &i.Price, &i.ImageRef, nullMillisDest{&i.CheckedAt}}
	},
)

var PantryItems = newTable("pantry_items",
	[]string{"name", "category", "quantity", "unit", "location", "expiry_date", "purchase_date", "low_stock_threshold", "notes", "image_ref", "barcode"},
	func(p *model.PantryItem) *model.Meta { return &p.Meta },
	func(p *model.PantryItem) []any {
		return []any{p.Name, p.Category, p.Quantity, p.Unit, string(p.Location), nullMillis(p.ExpiryDate), millis(p.PurchaseDate), p.LowStockThreshold, p.Notes, p.ImageRef, p.Barcode}
	},
	func(p *model.PantryItem) []any {
		return []any{&p.Name, &p.Category, &p.Quantity, &p.Unit, &p.Location, nullMillisDest{&p.ExpiryDate}, (*millis)(&p.PurchaseDate), &p.LowStockThreshold, &p.Notes, &p.ImageRef, &p.Barcode}
	},
)

var Categories = newTable("categories",
	[]string{"name", "icon", "color", "position", "is_custom"},
	func(c *model.Category) *model.Meta { return &c.Meta },
	func(c *model.Category) []any { return []any{c.Name, c.Icon, c.Color, c.Position, c.IsCustom} },
	func(c *model.Category) []any { return []any{&c.Name, &c.Icon, &c.Color, &c.Position, &c.IsCustom} },
)

var Recipes = newTable("recipes",
	[]string{"name", "description", "servings", "prep_time", "cook_time", "image_ref", "instructions", "favorite"},
	func(r *model.Recipe) *model.Meta { return &r.Meta },
	func(r *model.Recipe) []any {
		return []any{r.Name, r.Description, r.Servings, r.PrepTime, r.CookTime, r.ImageRef, r.Instructions, r.Favorite}
	},
	func(r *model.Recipe) []any {
		return []any{&r.Name, &r.Description, &r.Servings, &r.PrepTime, &r.CookTime, &r.ImageRef, &r.Instructions, &r.Favorite}
	},
)

var RecipeIngredients = newTable("recipe_ingredients",
	[]string{"recipe_id", "pantry_item_id", "name", "quantity", "unit", "notes", "position"},
	func(i *model.RecipeIngredient) *model.Meta { return &i.Meta },
	func(i *model.RecipeIngredient) []any {
		return []any{i.RecipeID, i.PantryItemID, i.Name, i.Quantity, i.Unit, i.Notes, i.Position}
	},
	func(i *model.RecipeIngredient) []any {
		return []any{&i.RecipeID, &i.PantryItemID, &i.Name, &i.Quantity, &i.Unit, &i.Notes, &i.Position}
	},
)

var MealPlans = newTable("meal_plans",
	[]string{"date", "meal_type", "recipe_id", "custom_meal_name", "notes", "servings", "is_leftover", "leftover_from_date", "position"},
	func(m *model.MealPlan) *model.Meta { return &m.Meta },
	func(m *model.MealPlan) []any {
		return []any{millis(m.Date), string(m.MealType), m.RecipeID, m.CustomMealName, m.Notes, m.Servings, m.IsLeftover, nullMillis(m.LeftoverFromDate), m.Position}
	},
	func(m *model.MealPlan) []any {
		return []any{(*millis)(&m.Date), &m.MealType, &m.RecipeID, &m.CustomMealName, &m.Notes, &m.Servings, &m.IsLeftover, nullMillisDest{&m.LeftoverFromDate}, &m.Position}
	},
)
