package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/grocery"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/record"
)

// PantryState is the last fetched pantry with its derived views. The views
// are computed from Items at fetch time and are as fresh as that fetch.
type PantryState struct {
	Items    []model.PantryItem `json:"items"`
	LowStock []model.PantryItem `json:"low_stock"`
	Expiring []model.PantryItem `json:"expiring"`
	Expired  []model.PantryItem `json:"expired"`
}

type PantryStore struct {
	rs     *record.Store
	logger *slog.Logger

	mu    sync.RWMutex
	state PantryState
}

func NewPantryStore(rs *record.Store, logger *slog.Logger) *PantryStore {
	return &PantryStore{rs: rs, logger: logger, state: derivePantry(nil, rs.Now())}
}

func derivePantry(items []model.PantryItem, now time.Time) PantryState {
	st := PantryState{
		Items:    items,
		LowStock: []model.PantryItem{},
		Expiring: []model.PantryItem{},
		Expired:  []model.PantryItem{},
	}
	if st.Items == nil {
		st.Items = []model.PantryItem{}
	}
	for _, it := range items {
		if it.IsLowStock() {
			st.LowStock = append(st.LowStock, it)
		}
		if it.IsExpiring(now) {
			st.Expiring = append(st.Expiring, it)
		}
		if it.IsExpired(now) {
			st.Expired = append(st.Expired, it)
		}
	}
	return st
}

func pantryQuery() record.Query[model.PantryItem] {
	return record.From(record.PantryItems).OrderBy(record.Asc("name"))
}

// Fetch reloads every pantry item and recomputes the derived views.
func (s *PantryStore) Fetch(ctx context.Context) (PantryState, error) {
	items, err := pantryQuery().All(ctx, s.rs)
	if err != nil {
		return PantryState{}, fmt.Errorf("fetch pantry: %w", err)
	}
	st := derivePantry(items, s.rs.Now())
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return st, nil
}

// State returns the result of the last Fetch.
func (s *PantryStore) State() PantryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *PantryStore) Item(ctx context.Context, id string) (*model.PantryItem, error) {
	return record.Get(ctx, s.rs, record.PantryItems, id)
}

func (s *PantryStore) Observe(ctx context.Context) (*record.Subscription[model.PantryItem], error) {
	return record.Observe(ctx, s.rs, pantryQuery())
}

// AddItem stores a new pantry item. The purchase date defaults to now and
// the location to the pantry.
func (s *PantryStore) AddItem(ctx context.Context, in model.NewPantryItem) (*model.PantryItem, error) {
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	item := &model.PantryItem{
		Name:              in.Name,
		Category:          in.Category,
		Quantity:          in.Quantity,
		Unit:              in.Unit,
		Location:          in.Location,
		ExpiryDate:        in.ExpiryDate,
		LowStockThreshold: in.LowStockThreshold,
		Notes:             in.Notes,
		ImageRef:          in.ImageRef,
		Barcode:           in.Barcode,
	}
	if item.Location == "" {
		item.Location = model.LocationPantry
	}
	if item.Category == "" {
		item.Category = grocery.Categorize(item.Name)
	}
	if in.PurchaseDate != nil {
		item.PurchaseDate = *in.PurchaseDate
	} else {
		item.PurchaseDate = s.rs.Now()
	}

	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		return record.Create(tx, record.PantryItems, item)
	})
	if err != nil {
		return nil, fmt.Errorf("add pantry item: %w", err)
	}
	return item, nil
}

func (s *PantryStore) UpdateItem(ctx context.Context, id string, p model.PantryItemPatch) (*model.PantryItem, error) {
	if err := apperr.Validate(p); err != nil {
		return nil, err
	}
	return s.update(ctx, id, p)
}

func (s *PantryStore) update(ctx context.Context, id string, p record.Patch[model.PantryItem]) (*model.PantryItem, error) {
	var item *model.PantryItem
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		var err error
		item, err = record.Update(tx, record.PantryItems, id, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update pantry item: %w", err)
	}
	return item, nil
}

// DeleteItem soft-deletes a pantry item. List items that point at it keep
// their reference; it is a lookup link only.
func (s *PantryStore) DeleteItem(ctx context.Context, id string) error {
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		if _, err := record.Get(ctx, tx, record.PantryItems, id); err != nil {
			return err
		}
		return record.MarkDeleted(tx, record.PantryItems, id)
	})
	if err != nil {
		return fmt.Errorf("delete pantry item: %w", err)
	}
	return nil
}

func checkAmount(amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return apperr.Invalid("amount", "must be a non-negative number")
	}
	return nil
}

// ConsumeItem subtracts amount, clamping the quantity at zero.
func (s *PantryStore) ConsumeItem(ctx context.Context, id string, amount float64) (*model.PantryItem, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	return s.update(ctx, id, record.PatchFunc[model.PantryItem](func(p *model.PantryItem) {
		p.Quantity = math.Max(0, p.Quantity-amount)
	}))
}

func (s *PantryStore) ReplenishItem(ctx context.Context, id string, amount float64) (*model.PantryItem, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	return s.update(ctx, id, record.PatchFunc[model.PantryItem](func(p *model.PantryItem) {
		p.Quantity += amount
	}))
}

// AddLowStockToList adds every low-stock pantry item that is not already an
// unchecked item of the list. Each new item links back to its pantry entry
// and asks for enough to get back above the threshold, at least 1.
func (s *PantryStore) AddLowStockToList(ctx context.Context, listID string) ([]model.ListItem, error) {
	added := []model.ListItem{}
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		if _, err := record.Get(ctx, tx, record.Lists, listID); err != nil {
			return err
		}
		pantry, err := pantryQuery().All(ctx, tx)
		if err != nil {
			return err
		}
		existing, err := listItems(ctx, tx, listID)
		if err != nil {
			return err
		}
		linked := make(map[string]bool)
		for _, it := range existing {
			if it.PantryItemID != nil && !it.Checked {
				linked[*it.PantryItemID] = true
			}
		}

		pos := len(existing)
		for _, p := range pantry {
			if !p.IsLowStock() || linked[p.ID] {
				continue
			}
			qty := p.LowStockThreshold - p.Quantity
			if qty < 1 {
				qty = 1
			}
			item := model.ListItem{
				ListID:       listID,
				PantryItemID: ptr(p.ID),
				Name:         p.Name,
				Quantity:     qty,
				Unit:         p.Unit,
				Category:     p.Category,
				Position:     pos,
			}
			if err := record.Create(tx, record.ListItems, &item); err != nil {
				return err
			}
			added = append(added, item)
			pos++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add low stock to list: %w", err)
	}
	return added, nil
}
