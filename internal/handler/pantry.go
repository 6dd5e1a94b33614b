package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

type PantryHandler struct {
	pantry *store.PantryStore
	logger *slog.Logger
}

func NewPantryHandler(ps *store.PantryStore, logger *slog.Logger) *PantryHandler {
	return &PantryHandler{pantry: ps, logger: logger}
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

// List handles GET /api/pantry
func (h *PantryHandler) List(w http.ResponseWriter, r *http.Request) {
	st, err := h.pantry.Fetch(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to load pantry", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Get handles GET /api/pantry/{id}
func (h *PantryHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.pantry.Item(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "failed to get pantry item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Create handles POST /api/pantry
func (h *PantryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NewPantryItem
	if !decode(w, r, &req) {
		return
	}
	item, err := h.pantry.AddItem(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "failed to add pantry item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// Update handles PATCH /api/pantry/{id}
func (h *PantryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.PantryItemPatch
	if !decode(w, r, &req) {
		return
	}
	item, err := h.pantry.UpdateItem(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, "failed to update pantry item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /api/pantry/{id}
func (h *PantryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.pantry.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "failed to delete pantry item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Consume handles POST /api/pantry/{id}/consume
func (h *PantryHandler) Consume(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := h.pantry.ConsumeItem(r.Context(), r.PathValue("id"), req.Amount)
	if err != nil {
		writeError(w, h.logger, "failed to consume pantry item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Replenish handles POST /api/pantry/{id}/replenish
func (h *PantryHandler) Replenish(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := h.pantry.ReplenishItem(r.Context(), r.PathValue("id"), req.Amount)
	if err != nil {
		writeError(w, h.logger, "failed to replenish pantry item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// AddLowStockToList handles POST /api/lists/{id}/low-stock
func (h *PantryHandler) AddLowStockToList(w http.ResponseWriter, r *http.Request) {
	items, err := h.pantry.AddLowStockToList(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "failed to add low stock items", err)
		return
	}
	writeJSON(w, http.StatusCreated, items)
}
