package model

import "time"

type List struct {
	Meta
	Name          string     `json:"name"`
	Icon          string     `json:"icon"`
	Color         string     `json:"color"`
	Archived      bool       `json:"archived"`
	Position      int        `json:"position"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	StoreLocation *string    `json:"store_location,omitempty"`
	Budget        *float64   `json:"budget,omitempty"`
}

type NewList struct {
	Name          string   `json:"name" validate:"notblank,max=100"`
	Icon          string   `json:"icon" validate:"max=16"`
	Color         string   `json:"color" validate:"omitempty,hexcolor"`
	StoreLocation *string  `json:"store_location"`
	Budget        *float64 `json:"budget" validate:"omitempty,gte=0"`
}

// ListPatch updates only the fields that are set.
type ListPatch struct {
	Name          *string  `json:"name" validate:"omitempty,notblank,max=100"`
	Icon          *string  `json:"icon" validate:"omitempty,max=16"`
	Color         *string  `json:"color" validate:"omitempty,hexcolor"`
	StoreLocation *string  `json:"store_location"`
	Budget        *float64 `json:"budget" validate:"omitempty,gte=0"`
}

func (p ListPatch) Apply(l *List) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Icon != nil {
		l.Icon = *p.Icon
	}
	if p.Color != nil {
		l.Color = *p.Color
	}
	if p.StoreLocation != nil {
		l.StoreLocation = p.StoreLocation
	}
	if p.Budget != nil {
		l.Budget = p.Budget
	}
}

type ListItem struct {
	Meta
	ListID       string     `json:"list_id"`
	PantryItemID *string    `json:"pantry_item_id,omitempty"`
	Name         string     `json:"name"`
	Quantity     float64    `json:"quantity"`
	Unit         string     `json:"unit"`
	Category     string     `json:"category"`
	Checked      bool       `json:"checked"`
	Position     int        `json:"position"`
	Notes        *string    `json:"notes,omitempty"`
	Price        *float64   `json:"price,omitempty"`
	ImageRef     *string    `json:"image_ref,omitempty"`
	CheckedAt    *time.Time `json:"checked_at,omitempty"`
}

// NewListItem is the input for adding an item. A missing Quantity defaults
// to 1; an explicit 0 is kept.
type NewListItem struct {
	ListID       string   `json:"list_id" validate:"required"`
	PantryItemID *string  `json:"pantry_item_id"`
	Name         string   `json:"name" validate:"notblank,max=200"`
	Quantity     *float64 `json:"quantity" validate:"omitempty,gte=0"`
	Unit         string   `json:"unit" validate:"max=32"`
	Category     string   `json:"category" validate:"max=64"`
	Notes        *string  `json:"notes"`
	Price        *float64 `json:"price" validate:"omitempty,gte=0"`
	ImageRef     *string  `json:"image_ref"`
}

type ListItemPatch struct {
	Name         *string  `json:"name" validate:"omitempty,notblank,max=200"`
	Quantity     *float64 `json:"quantity" validate:"omitempty,gte=0"`
	Unit         *string  `json:"unit" validate:"omitempty,max=32"`
	Category     *string  `json:"category" validate:"omitempty,max=64"`
	Notes        *string  `json:"notes"`
	Price        *float64 `json:"price" validate:"omitempty,gte=0"`
	ImageRef     *string  `json:"image_ref"`
	PantryItemID *string  `json:"pantry_item_id"`
}

func (p ListItemPatch) Apply(i *ListItem) {
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.Quantity != nil {
		i.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		i.Unit = *p.Unit
	}
	if p.Category != nil {
		i.Category = *p.Category
	}
	if p.Notes != nil {
		i.Notes = p.Notes
	}
	if p.Price != nil {
		i.Price = p.Price
	}
	if p.ImageRef != nil {
		i.ImageRef = p.ImageRef
	}
	if p.PantryItemID != nil {
		i.PantryItemID = p.PantryItemID
	}
}

// CheckedItems returns the checked subset of items, preserving order.
func CheckedItems(items []ListItem) []ListItem {
	out := []ListItem{}
	for _, it := range items {
		if it.Checked {
			out = append(out, it)
		}
	}
	return out
}

// UncheckedItems returns the unchecked subset of items, preserving order.
func UncheckedItems(items []ListItem) []ListItem {
	out := []ListItem{}
	for _, it := range items {
		if !it.Checked {
			out = append(out, it)
		}
	}
	return out
}

// Progress returns the fraction of checked items in [0, 1].
func Progress(items []ListItem) float64 {
	if len(items) == 0 {
		return 0
	}
	return float64(len(CheckedItems(items))) / float64(len(items))
}

// EstimatedTotal sums price*quantity over priced items.
func EstimatedTotal(items []ListItem) float64 {
	var total float64
	for _, it := range items {
		if it.Price != nil {
			total += *it.Price * it.Quantity
		}
	}
	return total
}
