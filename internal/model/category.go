package model

type Category struct {
	Meta
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Color    string `json:"color"`
	Position int    `json:"position"`
	IsCustom bool   `json:"is_custom"`
}

type NewCategory struct {
	Name  string `json:"name" validate:"notblank,max=64"`
	Icon  string `json:"icon" validate:"max=16"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

type CategoryPatch struct {
	Name  *string `json:"name" validate:"omitempty,notblank,max=64"`
	Icon  *string `json:"icon" validate:"omitempty,max=16"`
	Color *string `json:"color" validate:"omitempty,hexcolor"`
}

func (p CategoryPatch) Apply(c *Category) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Icon != nil {
		c.Icon = *p.Icon
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
}

// DefaultCategories are seeded once on first launch, in display order.
var DefaultCategories = []NewCategory{
	{Name: "Produce", Icon: "🥬", Color: "#34C759"},
	{Name: "Dairy", Icon: "🥛", Color: "#5AC8FA"},
	{Name: "Meat & Seafood", Icon: "🥩", Color: "#FF3B30"},
	{Name: "Bakery", Icon: "🍞", Color: "#FF9500"},
	{Name: "Pantry", Icon: "🥫", Color: "#A2845E"},
	{Name: "Frozen", Icon: "🧊", Color: "#64D2FF"},
	{Name: "Beverages", Icon: "🧃", Color: "#FFCC00"},
	{Name: "Snacks", Icon: "🍿", Color: "#FF9F0A"},
	{Name: "Condiments", Icon: "🧂", Color: "#BF5AF2"},
	{Name: "Spices", Icon: "🌶️", Color: "#FF453A"},
	{Name: "Household", Icon: "🧽", Color: "#8E8E93"},
	{Name: "Personal Care", Icon: "🧴", Color: "#FF2D55"},
	{Name: "Baby", Icon: "🍼", Color: "#FFD60A"},
	{Name: "Other", Icon: "📦", Color: "#636366"},
}
