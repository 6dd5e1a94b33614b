package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

type MealPlanHandler struct {
	meals  *store.MealPlanStore
	logger *slog.Logger
}

func NewMealPlanHandler(ms *store.MealPlanStore, logger *slog.Logger) *MealPlanHandler {
	return &MealPlanHandler{meals: ms, logger: logger}
}

type shoppingListRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Name  string `json:"name"`
}

type shoppingListResponse struct {
	List  *model.List      `json:"list"`
	Items []model.ListItem `json:"items"`
}

type leftoverRequest struct {
	Date string `json:"date"`
}

// List handles GET /api/meals?date=yyyy-mm-dd or ?start=...&end=...
func (h *MealPlanHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		meals []model.MealPlan
		err   error
	)
	if r.URL.Query().Has("date") {
		var day time.Time
		if day, err = parseDate(r, "date"); err == nil {
			meals, err = h.meals.MealsOn(r.Context(), day)
		}
	} else {
		var start, end time.Time
		start, err = parseDate(r, "start")
		if err == nil {
			end, err = parseDate(r, "end")
		}
		if err == nil {
			meals, err = h.meals.MealsInRange(r.Context(), start, end)
		}
	}
	if err != nil {
		writeError(w, h.logger, "failed to list meals", err)
		return
	}
	writeJSON(w, http.StatusOK, meals)
}

// Get handles GET /api/meals/{id}
func (h *MealPlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.meals.Meal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "failed to get meal", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Create handles POST /api/meals
func (h *MealPlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NewMealPlan
	if !decode(w, r, &req) {
		return
	}
	m, err := h.meals.AddMeal(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "failed to add meal", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Update handles PATCH /api/meals/{id}
func (h *MealPlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.MealPlanPatch
	if !decode(w, r, &req) {
		return
	}
	m, err := h.meals.UpdateMeal(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, "failed to update meal", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Delete handles DELETE /api/meals/{id}
func (h *MealPlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.meals.DeleteMeal(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "failed to delete meal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Leftover handles POST /api/meals/{id}/leftover
func (h *MealPlanHandler) Leftover(w http.ResponseWriter, r *http.Request) {
	var req leftoverRequest
	if !decode(w, r, &req) {
		return
	}
	day, err := time.ParseInLocation(dateLayout, req.Date, time.Local)
	if err != nil {
		writeError(w, h.logger, "", apperr.Invalid("date", "must be a date (yyyy-mm-dd)"))
		return
	}
	m, err := h.meals.MarkLeftover(r.Context(), r.PathValue("id"), day)
	if err != nil {
		writeError(w, h.logger, "failed to plan leftovers", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ShoppingList handles POST /api/meals/shopping-list
func (h *MealPlanHandler) ShoppingList(w http.ResponseWriter, r *http.Request) {
	var req shoppingListRequest
	if !decode(w, r, &req) {
		return
	}
	start, err := time.ParseInLocation(dateLayout, req.Start, time.Local)
	if err != nil {
		writeError(w, h.logger, "", apperr.Invalid("start", "must be a date (yyyy-mm-dd)"))
		return
	}
	end, err := time.ParseInLocation(dateLayout, req.End, time.Local)
	if err != nil {
		writeError(w, h.logger, "", apperr.Invalid("end", "must be a date (yyyy-mm-dd)"))
		return
	}
	l, items, err := h.meals.GenerateShoppingList(r.Context(), start, end, req.Name)
	if err != nil {
		writeError(w, h.logger, "failed to generate shopping list", err)
		return
	}
	writeJSON(w, http.StatusCreated, shoppingListResponse{List: l, Items: items})
}
