package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

// SettingsHandler serves settings and the kv-backed history: favorites,
// recents and name suggestions.
type SettingsHandler struct {
	settings    *store.SettingsStore
	favorites   *store.FavoritesStore
	recents     *store.RecentsStore
	suggestions *store.SuggestionsStore
	logger      *slog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, fs *store.FavoritesStore, rs *store.RecentsStore, sg *store.SuggestionsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: ss, favorites: fs, recents: rs, suggestions: sg, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.SettingsPatch
	if !decode(w, r, &req) {
		return
	}
	s, err := h.settings.Update(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Reset(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to reset settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	favs, err := h.favorites.Favorites(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to list favorites", err)
		return
	}
	writeJSON(w, http.StatusOK, favs)
}

func (h *SettingsHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var req model.Favorite
	if !decode(w, r, &req) {
		return
	}
	favs, err := h.favorites.Add(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "failed to add favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, favs)
}

// RemoveFavorite handles DELETE /api/favorites/{name}
func (h *SettingsHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	favs, err := h.favorites.Remove(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, h.logger, "failed to remove favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, favs)
}

func (h *SettingsHandler) Recents(w http.ResponseWriter, r *http.Request) {
	recents, err := h.recents.Recents(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to list recents", err)
		return
	}
	writeJSON(w, http.StatusOK, recents)
}

func (h *SettingsHandler) ClearRecents(w http.ResponseWriter, r *http.Request) {
	if err := h.recents.Clear(r.Context()); err != nil {
		writeError(w, h.logger, "failed to clear recents", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Suggest handles GET /api/suggestions?q=mi&limit=10
func (h *SettingsHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	names, err := h.suggestions.Suggest(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 10))
	if err != nil {
		writeError(w, h.logger, "failed to load suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}
