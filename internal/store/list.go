package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/grocery"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/record"
)

// ListState is the last fetched set of lists.
type ListState struct {
	Active   []model.List `json:"active"`
	Archived []model.List `json:"archived"`
}

// ItemsView is one list's items with the views derived from them.
type ItemsView struct {
	Items          []model.ListItem `json:"items"`
	Checked        []model.ListItem `json:"checked"`
	Unchecked      []model.ListItem `json:"unchecked"`
	Progress       float64          `json:"progress"`
	EstimatedTotal float64          `json:"estimated_total"`
}

type ListStore struct {
	rs          *record.Store
	settings    *SettingsStore
	recents     *RecentsStore
	suggestions *SuggestionsStore
	logger      *slog.Logger

	mu    sync.RWMutex
	state ListState
}

func NewListStore(rs *record.Store, settings *SettingsStore, recents *RecentsStore, suggestions *SuggestionsStore, logger *slog.Logger) *ListStore {
	return &ListStore{
		rs:          rs,
		settings:    settings,
		recents:     recents,
		suggestions: suggestions,
		logger:      logger,
		state:       ListState{Active: []model.List{}, Archived: []model.List{}},
	}
}

// --- List methods ---

func activeLists(ctx context.Context, r record.Reader) ([]model.List, error) {
	return record.From(record.Lists).
		Where(record.Eq("archived", false)).
		OrderBy(record.Asc("position")).
		All(ctx, r)
}

// Fetch reloads the active and archived lists.
func (s *ListStore) Fetch(ctx context.Context) (ListState, error) {
	active, err := activeLists(ctx, s.rs)
	if err != nil {
		return ListState{}, fmt.Errorf("fetch active lists: %w", err)
	}
	archived, err := record.From(record.Lists).
		Where(record.Eq("archived", true)).
		OrderBy(record.Desc("updated_at")).
		All(ctx, s.rs)
	if err != nil {
		return ListState{}, fmt.Errorf("fetch archived lists: %w", err)
	}

	st := ListState{Active: active, Archived: archived}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return st, nil
}

// State returns the result of the last Fetch.
func (s *ListStore) State() ListState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *ListStore) List(ctx context.Context, id string) (*model.List, error) {
	return record.Get(ctx, s.rs, record.Lists, id)
}

// ObserveLists subscribes to the active lists in display order.
func (s *ListStore) ObserveLists(ctx context.Context) (*record.Subscription[model.List], error) {
	return record.Observe(ctx, s.rs, record.From(record.Lists).
		Where(record.Eq("archived", false)).
		OrderBy(record.Asc("position")))
}

func (s *ListStore) CreateList(ctx context.Context, in model.NewList) (*model.List, error) {
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	l := &model.List{
		Name:          in.Name,
		Icon:          in.Icon,
		Color:         in.Color,
		StoreLocation: in.StoreLocation,
		Budget:        in.Budget,
	}
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		n, err := record.From(record.Lists).Where(record.Eq("archived", false)).Count(ctx, tx)
		if err != nil {
			return err
		}
		l.Position = n
		return record.Create(tx, record.Lists, l)
	})
	if err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}
	return l, nil
}

func (s *ListStore) UpdateList(ctx context.Context, id string, p model.ListPatch) (*model.List, error) {
	if err := apperr.Validate(p); err != nil {
		return nil, err
	}
	return s.updateList(ctx, id, p)
}

func (s *ListStore) updateList(ctx context.Context, id string, p record.Patch[model.List]) (*model.List, error) {
	var l *model.List
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		var err error
		l, err = record.Update(tx, record.Lists, id, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update list: %w", err)
	}
	return l, nil
}

// DeleteList soft-deletes the list and all of its items in one transaction
// and closes the gap in the remaining positions.
func (s *ListStore) DeleteList(ctx context.Context, id string) error {
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		l, err := record.Get(ctx, tx, record.Lists, id)
		if err != nil {
			return err
		}
		if _, err := record.MarkDeletedWhere(tx, record.ListItems, record.Eq("list_id", id)); err != nil {
			return err
		}
		if err := record.MarkDeleted(tx, record.Lists, id); err != nil {
			return err
		}
		rest, err := record.From(record.Lists).
			Where(record.Eq("archived", l.Archived)).
			OrderBy(record.Asc("position")).
			All(ctx, tx)
		if err != nil {
			return err
		}
		return renumber(tx, record.Lists, rest, listPosition)
	})
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return nil
}

func listPosition(l *model.List) *int { return &l.Position }

func (s *ListStore) ArchiveList(ctx context.Context, id string) (*model.List, error) {
	return s.setArchived(ctx, id, true)
}

func (s *ListStore) UnarchiveList(ctx context.Context, id string) (*model.List, error) {
	return s.setArchived(ctx, id, false)
}

func (s *ListStore) setArchived(ctx context.Context, id string, archived bool) (*model.List, error) {
	var l *model.List
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		n, err := record.From(record.Lists).Where(record.Eq("archived", archived)).Count(ctx, tx)
		if err != nil {
			return err
		}
		l, err = record.Update(tx, record.Lists, id, record.PatchFunc[model.List](func(l *model.List) {
			if l.Archived != archived {
				l.Archived = archived
				l.Position = n
			}
		}))
		if err != nil {
			return err
		}
		rest, err := record.From(record.Lists).
			Where(record.Eq("archived", !archived)).
			OrderBy(record.Asc("position")).
			All(ctx, tx)
		if err != nil {
			return err
		}
		return renumber(tx, record.Lists, rest, listPosition)
	})
	if err != nil {
		return nil, fmt.Errorf("archive list: %w", err)
	}
	return l, nil
}

// CompleteList stamps the list as completed now.
func (s *ListStore) CompleteList(ctx context.Context, id string) (*model.List, error) {
	now := s.rs.Now()
	return s.updateList(ctx, id, record.PatchFunc[model.List](func(l *model.List) { l.CompletedAt = &now }))
}

func (s *ListStore) ReopenList(ctx context.Context, id string) (*model.List, error) {
	return s.updateList(ctx, id, record.PatchFunc[model.List](func(l *model.List) { l.CompletedAt = nil }))
}

// ReorderLists moves the active list at index from to index to and
// renumbers every active list.
func (s *ListStore) ReorderLists(ctx context.Context, from, to int) ([]model.List, error) {
	var out []model.List
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		lists, err := activeLists(ctx, tx)
		if err != nil {
			return err
		}
		out, err = move(lists, from, to)
		if err != nil {
			return err
		}
		return renumber(tx, record.Lists, out, listPosition)
	})
	if err != nil {
		return nil, fmt.Errorf("reorder lists: %w", err)
	}
	return out, nil
}

// DuplicateList deep-copies a list and its items under fresh ids with every
// item unchecked. An empty name becomes "<name> (Copy)".
func (s *ListStore) DuplicateList(ctx context.Context, id, name string) (*model.List, error) {
	var dup *model.List
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		src, err := record.Get(ctx, tx, record.Lists, id)
		if err != nil {
			return err
		}
		items, err := listItems(ctx, tx, id)
		if err != nil {
			return err
		}
		n, err := record.From(record.Lists).Where(record.Eq("archived", false)).Count(ctx, tx)
		if err != nil {
			return err
		}

		dup = &model.List{
			Name:          name,
			Icon:          src.Icon,
			Color:         src.Color,
			Position:      n,
			StoreLocation: src.StoreLocation,
			Budget:        src.Budget,
		}
		if dup.Name == "" {
			dup.Name = src.Name + " (Copy)"
		}
		copies := make([]model.ListItem, len(items))
		for i, it := range items {
			it.Meta = model.Meta{}
			it.Checked = false
			it.CheckedAt = nil
			copies[i] = it
		}
		return createListWithItems(tx, dup, copies)
	})
	if err != nil {
		return nil, fmt.Errorf("duplicate list: %w", err)
	}
	return dup, nil
}

// createListWithItems creates l and then items under it with dense positions.
func createListWithItems(tx *record.Tx, l *model.List, items []model.ListItem) error {
	if err := record.Create(tx, record.Lists, l); err != nil {
		return err
	}
	for i := range items {
		items[i].ListID = l.ID
		items[i].Position = i
		if err := record.Create(tx, record.ListItems, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

// --- Item methods ---

func listItems(ctx context.Context, r record.Reader, listID string) ([]model.ListItem, error) {
	return itemsQuery(listID).All(ctx, r)
}

func itemsQuery(listID string) record.Query[model.ListItem] {
	return record.From(record.ListItems).
		Where(record.Eq("list_id", listID)).
		OrderBy(record.Asc("position"))
}

func itemPosition(i *model.ListItem) *int { return &i.Position }

func (s *ListStore) Items(ctx context.Context, listID string) ([]model.ListItem, error) {
	items, err := listItems(ctx, s.rs, listID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// ItemsView returns a list's items together with its checked and unchecked
// subsets and progress.
func (s *ListStore) ItemsView(ctx context.Context, listID string) (ItemsView, error) {
	if _, err := record.Get(ctx, s.rs, record.Lists, listID); err != nil {
		return ItemsView{}, err
	}
	items, err := s.Items(ctx, listID)
	if err != nil {
		return ItemsView{}, err
	}
	return NewItemsView(items), nil
}

func NewItemsView(items []model.ListItem) ItemsView {
	return ItemsView{
		Items:          items,
		Checked:        model.CheckedItems(items),
		Unchecked:      model.UncheckedItems(items),
		Progress:       model.Progress(items),
		EstimatedTotal: model.EstimatedTotal(items),
	}
}

// ObserveItems subscribes to one list's items in position order.
func (s *ListStore) ObserveItems(ctx context.Context, listID string) (*record.Subscription[model.ListItem], error) {
	return record.Observe(ctx, s.rs, itemsQuery(listID))
}

// AddItem appends an item to a live list. A zero quantity becomes 1 and an
// empty category is guessed from the name when auto-categorize is on.
func (s *ListStore) AddItem(ctx context.Context, in model.NewListItem) (*model.ListItem, error) {
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	qty := 1.0
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	if in.Category == "" {
		settings, err := s.settings.Get(ctx)
		if err != nil {
			return nil, err
		}
		if settings.AutoCategorize {
			in.Category = grocery.Categorize(in.Name)
		}
	}

	item := &model.ListItem{
		ListID:       in.ListID,
		PantryItemID: in.PantryItemID,
		Name:         in.Name,
		Quantity:     qty,
		Unit:         in.Unit,
		Category:     in.Category,
		Notes:        in.Notes,
		Price:        in.Price,
		ImageRef:     in.ImageRef,
	}
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		if _, err := record.Get(ctx, tx, record.Lists, in.ListID); err != nil {
			return err
		}
		n, err := itemsQuery(in.ListID).Count(ctx, tx)
		if err != nil {
			return err
		}
		item.Position = n
		return record.Create(tx, record.ListItems, item)
	})
	if err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}

	if err := s.suggestions.Record(ctx, item.Name); err != nil {
		s.logger.Warn("record suggestion", "name", item.Name, "error", err)
	}
	return item, nil
}

func (s *ListStore) UpdateItem(ctx context.Context, id string, p model.ListItemPatch) (*model.ListItem, error) {
	if err := apperr.Validate(p); err != nil {
		return nil, err
	}
	var item *model.ListItem
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		var err error
		item, err = record.Update(tx, record.ListItems, id, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return item, nil
}

func (s *ListStore) DeleteItem(ctx context.Context, id string) error {
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		item, err := record.Get(ctx, tx, record.ListItems, id)
		if err != nil {
			return err
		}
		if err := record.MarkDeleted(tx, record.ListItems, id); err != nil {
			return err
		}
		rest, err := listItems(ctx, tx, item.ListID)
		if err != nil {
			return err
		}
		return renumber(tx, record.ListItems, rest, itemPosition)
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// ToggleItem flips the checked flag. Checking stamps CheckedAt and records
// the item in recents; unchecking clears CheckedAt.
func (s *ListStore) ToggleItem(ctx context.Context, id string) (*model.ListItem, error) {
	now := s.rs.Now()
	var item *model.ListItem
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		var err error
		item, err = record.Update(tx, record.ListItems, id, record.PatchFunc[model.ListItem](func(i *model.ListItem) {
			i.Checked = !i.Checked
			if i.Checked {
				i.CheckedAt = &now
			} else {
				i.CheckedAt = nil
			}
		}))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("toggle item: %w", err)
	}

	if item.Checked {
		err := s.recents.Add(ctx, model.Recent{
			Name:      item.Name,
			Quantity:  item.Quantity,
			Unit:      item.Unit,
			Category:  item.Category,
			ListID:    item.ListID,
			CheckedAt: now,
		})
		if err != nil {
			s.logger.Warn("record recent", "name", item.Name, "error", err)
		}
	}
	return item, nil
}

// ReorderItems moves the item at index from to index to within one list.
func (s *ListStore) ReorderItems(ctx context.Context, listID string, from, to int) ([]model.ListItem, error) {
	var out []model.ListItem
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		items, err := listItems(ctx, tx, listID)
		if err != nil {
			return err
		}
		out, err = move(items, from, to)
		if err != nil {
			return err
		}
		return renumber(tx, record.ListItems, out, itemPosition)
	})
	if err != nil {
		return nil, fmt.Errorf("reorder items: %w", err)
	}
	return out, nil
}

// ClearChecked soft-deletes every checked item of a list and returns how many
// were removed.
func (s *ListStore) ClearChecked(ctx context.Context, listID string) (int, error) {
	var n int
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		var err error
		n, err = record.MarkDeletedWhere(tx, record.ListItems,
			record.Eq("list_id", listID), record.Eq("checked", true))
		if err != nil {
			return err
		}
		rest, err := listItems(ctx, tx, listID)
		if err != nil {
			return err
		}
		return renumber(tx, record.ListItems, rest, itemPosition)
	})
	if err != nil {
		return 0, fmt.Errorf("clear checked: %w", err)
	}
	return n, nil
}
