package model

import "time"

type Location string

const (
	LocationFridge  Location = "fridge"
	LocationPantry  Location = "pantry"
	LocationFreezer Location = "freezer"
)

// ExpiringWindowDays is the horizon, in days, inside which an item counts as expiring.
const ExpiringWindowDays = 3

type PantryItem struct {
	Meta
	Name              string     `json:"name"`
	Category          string     `json:"category"`
	Quantity          float64    `json:"quantity"`
	Unit              string     `json:"unit"`
	Location          Location   `json:"location"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	PurchaseDate      time.Time  `json:"purchase_date"`
	LowStockThreshold float64    `json:"low_stock_threshold"`
	Notes             *string    `json:"notes,omitempty"`
	ImageRef          *string    `json:"image_ref,omitempty"`
	Barcode           *string    `json:"barcode,omitempty"`
}

// IsLowStock reports quantity <= threshold.
func (p PantryItem) IsLowStock() bool {
	return p.Quantity <= p.LowStockThreshold
}

// DaysUntilExpiry returns calendar days until expiry and false when no expiry is set.
func (p PantryItem) DaysUntilExpiry(now time.Time) (int, bool) {
	if p.ExpiryDate == nil {
		return 0, false
	}
	return DaysBetween(now, *p.ExpiryDate), true
}

// IsExpiring reports 0 <= days until expiry <= ExpiringWindowDays.
func (p PantryItem) IsExpiring(now time.Time) bool {
	d, ok := p.DaysUntilExpiry(now)
	return ok && d >= 0 && d <= ExpiringWindowDays
}

// IsExpired reports an expiry date before today.
func (p PantryItem) IsExpired(now time.Time) bool {
	d, ok := p.DaysUntilExpiry(now)
	return ok && d < 0
}

type NewPantryItem struct {
	Name              string     `json:"name" validate:"notblank,max=200"`
	Category          string     `json:"category" validate:"max=64"`
	Quantity          float64    `json:"quantity" validate:"gte=0"`
	Unit              string     `json:"unit" validate:"max=32"`
	Location          Location   `json:"location" validate:"omitempty,oneof=fridge pantry freezer"`
	ExpiryDate        *time.Time `json:"expiry_date"`
	PurchaseDate      *time.Time `json:"purchase_date"`
	LowStockThreshold float64    `json:"low_stock_threshold" validate:"gte=0"`
	Notes             *string    `json:"notes"`
	ImageRef          *string    `json:"image_ref"`
	Barcode           *string    `json:"barcode"`
}

// PantryItemPatch has no PurchaseDate: it is set once at creation.
type PantryItemPatch struct {
	Name              *string    `json:"name" validate:"omitempty,notblank,max=200"`
	Category          *string    `json:"category" validate:"omitempty,max=64"`
	Quantity          *float64   `json:"quantity" validate:"omitempty,gte=0"`
	Unit              *string    `json:"unit" validate:"omitempty,max=32"`
	Location          *Location  `json:"location" validate:"omitempty,oneof=fridge pantry freezer"`
	ExpiryDate        *time.Time `json:"expiry_date"`
	LowStockThreshold *float64   `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	Notes             *string    `json:"notes"`
	ImageRef          *string    `json:"image_ref"`
	Barcode           *string    `json:"barcode"`
}

func (p PantryItemPatch) Apply(i *PantryItem) {
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.Category != nil {
		i.Category = *p.Category
	}
	if p.Quantity != nil {
		i.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		i.Unit = *p.Unit
	}
	if p.Location != nil {
		i.Location = *p.Location
	}
	if p.ExpiryDate != nil {
		i.ExpiryDate = p.ExpiryDate
	}
	if p.LowStockThreshold != nil {
		i.LowStockThreshold = *p.LowStockThreshold
	}
	if p.Notes != nil {
		i.Notes = p.Notes
	}
	if p.ImageRef != nil {
		i.ImageRef = p.ImageRef
	}
	if p.Barcode != nil {
		i.Barcode = p.Barcode
	}
}
