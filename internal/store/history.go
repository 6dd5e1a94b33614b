package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/kv"
	"github.com/dukerupert/larder/internal/model"
)

const (
	MaxFavorites   = 200
	MaxRecents     = 500
	MaxSuggestions = 50
)

// prepend puts v at the front of the history under key, drops older entries
// that same reports as duplicates and truncates the tail to limit entries.
func prepend[T any](ctx context.Context, s *kv.Store, key string, v T, limit int, same func(a, b T) bool) ([]T, error) {
	return kv.Update(ctx, s, key, func(list *[]T) error {
		out := make([]T, 0, len(*list)+1)
		out = append(out, v)
		for _, e := range *list {
			if same != nil && same(e, v) {
				continue
			}
			out = append(out, e)
		}
		if len(out) > limit {
			out = out[:limit]
		}
		*list = out
		return nil
	})
}

func load[T any](ctx context.Context, s *kv.Store, key string) ([]T, error) {
	out := []T{}
	if _, err := s.Get(ctx, key, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// --- Favorites ---

type FavoritesStore struct {
	kv  *kv.Store
	now func() time.Time
}

func NewFavoritesStore(kv *kv.Store) *FavoritesStore {
	return &FavoritesStore{kv: kv, now: time.Now}
}

func (s *FavoritesStore) Favorites(ctx context.Context) ([]model.Favorite, error) {
	favs, err := load[model.Favorite](ctx, s.kv, kv.KeyFavorites)
	if err != nil {
		return nil, fmt.Errorf("get favorites: %w", err)
	}
	return favs, nil
}

// Add makes f the most recent favorite, replacing any favorite with the same name.
func (s *FavoritesStore) Add(ctx context.Context, f model.Favorite) ([]model.Favorite, error) {
	if strings.TrimSpace(f.Name) == "" {
		return nil, apperr.Invalid("name", "is required")
	}
	if f.AddedAt.IsZero() {
		f.AddedAt = s.now()
	}
	favs, err := prepend(ctx, s.kv, kv.KeyFavorites, f, MaxFavorites, func(a, b model.Favorite) bool {
		return sameName(a.Name, b.Name)
	})
	if err != nil {
		return nil, fmt.Errorf("add favorite: %w", err)
	}
	return favs, nil
}

func (s *FavoritesStore) Remove(ctx context.Context, name string) ([]model.Favorite, error) {
	favs, err := kv.Update(ctx, s.kv, kv.KeyFavorites, func(list *[]model.Favorite) error {
		out := make([]model.Favorite, 0, len(*list))
		for _, f := range *list {
			if !sameName(f.Name, name) {
				out = append(out, f)
			}
		}
		*list = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove favorite: %w", err)
	}
	return favs, nil
}

func (s *FavoritesStore) IsFavorite(ctx context.Context, name string) (bool, error) {
	favs, err := s.Favorites(ctx)
	if err != nil {
		return false, err
	}
	for _, f := range favs {
		if sameName(f.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

// --- Recents ---

// RecentsStore remembers checked-off items, newest first.
type RecentsStore struct {
	kv *kv.Store
}

func NewRecentsStore(kv *kv.Store) *RecentsStore {
	return &RecentsStore{kv: kv}
}

func (s *RecentsStore) Recents(ctx context.Context) ([]model.Recent, error) {
	recents, err := load[model.Recent](ctx, s.kv, kv.KeyRecents)
	if err != nil {
		return nil, fmt.Errorf("get recents: %w", err)
	}
	return recents, nil
}

func (s *RecentsStore) Add(ctx context.Context, r model.Recent) error {
	if _, err := prepend(ctx, s.kv, kv.KeyRecents, r, MaxRecents, nil); err != nil {
		return fmt.Errorf("add recent: %w", err)
	}
	return nil
}

func (s *RecentsStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, kv.KeyRecents); err != nil {
		return fmt.Errorf("clear recents: %w", err)
	}
	return nil
}

// --- Suggestions ---

// SuggestionsStore keeps recently entered item names for autocomplete.
type SuggestionsStore struct {
	kv *kv.Store
}

func NewSuggestionsStore(kv *kv.Store) *SuggestionsStore {
	return &SuggestionsStore{kv: kv}
}

func (s *SuggestionsStore) Suggestions(ctx context.Context) ([]string, error) {
	names, err := load[string](ctx, s.kv, kv.KeySuggestions)
	if err != nil {
		return nil, fmt.Errorf("get suggestions: %w", err)
	}
	return names, nil
}

// Record moves name to the front, ignoring case when dropping duplicates.
func (s *SuggestionsStore) Record(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if _, err := prepend(ctx, s.kv, kv.KeySuggestions, name, MaxSuggestions, sameName); err != nil {
		return fmt.Errorf("record suggestion: %w", err)
	}
	return nil
}

// Suggest returns the remembered names starting with prefix, newest first.
func (s *SuggestionsStore) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	names, err := s.Suggestions(ctx)
	if err != nil {
		return nil, err
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	out := []string{}
	for _, n := range names {
		if strings.HasPrefix(strings.ToLower(n), prefix) {
			out = append(out, n)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
