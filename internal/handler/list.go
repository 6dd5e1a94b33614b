package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

type ListHandler struct {
	lists  *store.ListStore
	logger *slog.Logger
}

func NewListHandler(ls *store.ListStore, logger *slog.Logger) *ListHandler {
	return &ListHandler{lists: ls, logger: logger}
}

// Lists handles GET /api/lists
func (h *ListHandler) Lists(w http.ResponseWriter, r *http.Request) {
	st, err := h.lists.Fetch(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to load lists", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Get handles GET /api/lists/{id}
func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.lists.List(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "failed to get list", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Create handles POST /api/lists
func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NewList
	if !decode(w, r, &req) {
		return
	}
	l, err := h.lists.CreateList(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "failed to create list", err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// Update handles PATCH /api/lists/{id}
func (h *ListHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.ListPatch
	if !decode(w, r, &req) {
		return
	}
	l, err := h.lists.UpdateList(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, "failed to update list", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Delete handles DELETE /api/lists/{id}
func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.lists.DeleteList(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "failed to delete list", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) respondList(w http.ResponseWriter, r *http.Request, msg string, fn func(context.Context, string) (*model.List, error)) {
	l, err := fn(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, msg, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Archive handles POST /api/lists/{id}/archive
func (h *ListHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, "failed to archive list", h.lists.ArchiveList)
}

// Unarchive handles POST /api/lists/{id}/unarchive
func (h *ListHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, "failed to unarchive list", h.lists.UnarchiveList)
}

// Complete handles POST /api/lists/{id}/complete
func (h *ListHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, "failed to complete list", h.lists.CompleteList)
}

// Reopen handles POST /api/lists/{id}/reopen
func (h *ListHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, "failed to reopen list", h.lists.ReopenList)
}

// Reorder handles POST /api/lists/reorder
func (h *ListHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decode(w, r, &req) {
		return
	}
	lists, err := h.lists.ReorderLists(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, h.logger, "failed to reorder lists", err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

// Duplicate handles POST /api/lists/{id}/duplicate
func (h *ListHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := h.lists.DuplicateList(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, h.logger, "failed to duplicate list", err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// --- Items ---

// Items handles GET /api/lists/{id}/items
func (h *ListHandler) Items(w http.ResponseWriter, r *http.Request) {
	view, err := h.lists.ItemsView(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "failed to list items", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AddItem handles POST /api/lists/{id}/items
func (h *ListHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req model.NewListItem
	if !decode(w, r, &req) {
		return
	}
	req.ListID = r.PathValue("id")
	item, err := h.lists.AddItem(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "failed to add item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// ReorderItems handles POST /api/lists/{id}/items/reorder
func (h *ListHandler) ReorderItems(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decode(w, r, &req) {
		return
	}
	items, err := h.lists.ReorderItems(r.Context(), r.PathValue("id"), req.From, req.To)
	if err != nil {
		writeError(w, h.logger, "failed to reorder items", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ClearChecked handles POST /api/lists/{id}/clear-checked
func (h *ListHandler) ClearChecked(w http.ResponseWriter, r *http.Request) {
	n, err := h.lists.ClearChecked(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "failed to clear checked items", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// UpdateItem handles PATCH /api/items/{id}
func (h *ListHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req model.ListItemPatch
	if !decode(w, r, &req) {
		return
	}
	item, err := h.lists.UpdateItem(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, "failed to update item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/items/{id}
func (h *ListHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.lists.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "failed to delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleItem handles POST /api/items/{id}/toggle
func (h *ListHandler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.lists.ToggleItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "failed to toggle item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
