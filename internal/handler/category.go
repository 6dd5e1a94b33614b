package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

type CategoryHandler struct {
	categories *store.CategoryStore
	logger     *slog.Logger
}

func NewCategoryHandler(cs *store.CategoryStore, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{categories: cs, logger: logger}
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	cats, err := h.categories.Categories(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NewCategory
	if !decode(w, r, &req) {
		return
	}
	c, err := h.categories.CreateCategory(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "failed to create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.CategoryPatch
	if !decode(w, r, &req) {
		return
	}
	c, err := h.categories.UpdateCategory(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, "failed to update category", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "failed to delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CategoryHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decode(w, r, &req) {
		return
	}
	cats, err := h.categories.ReorderCategories(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, h.logger, "failed to reorder categories", err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}
