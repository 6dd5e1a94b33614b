package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

type RecipeHandler struct {
	recipes *store.RecipeStore
	logger  *slog.Logger
}

func NewRecipeHandler(rs *store.RecipeStore, logger *slog.Logger) *RecipeHandler {
	return &RecipeHandler{recipes: rs, logger: logger}
}

type recipeResponse struct {
	Recipe      *model.Recipe            `json:"recipe"`
	Ingredients []model.RecipeIngredient `json:"ingredients"`
}

// List handles GET /api/recipes. ?favorites=true limits to favorites.
func (h *RecipeHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.recipes.Recipes
	if r.URL.Query().Get("favorites") == "true" {
		list = h.recipes.Favorites
	}
	recipes, err := list(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to list recipes", err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

// Get handles GET /api/recipes/{id}
func (h *RecipeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	recipe, err := h.recipes.Recipe(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "failed to get recipe", err)
		return
	}
	ingredients, err := h.recipes.Ingredients(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "failed to get ingredients", err)
		return
	}
	writeJSON(w, http.StatusOK, recipeResponse{Recipe: recipe, Ingredients: ingredients})
}

// Create handles POST /api/recipes
func (h *RecipeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NewRecipe
	if !decode(w, r, &req) {
		return
	}
	recipe, ingredients, err := h.recipes.CreateRecipe(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "failed to create recipe", err)
		return
	}
	writeJSON(w, http.StatusCreated, recipeResponse{Recipe: recipe, Ingredients: ingredients})
}

// Update handles PATCH /api/recipes/{id}
func (h *RecipeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.RecipePatch
	if !decode(w, r, &req) {
		return
	}
	recipe, err := h.recipes.UpdateRecipe(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, "failed to update recipe", err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// SetIngredients handles PUT /api/recipes/{id}/ingredients
func (h *RecipeHandler) SetIngredients(w http.ResponseWriter, r *http.Request) {
	var req []model.NewIngredient
	if !decode(w, r, &req) {
		return
	}
	ingredients, err := h.recipes.SetIngredients(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, "failed to set ingredients", err)
		return
	}
	writeJSON(w, http.StatusOK, ingredients)
}

// ToggleFavorite handles POST /api/recipes/{id}/favorite
func (h *RecipeHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	recipe, err := h.recipes.ToggleFavorite(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "failed to toggle favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// Delete handles DELETE /api/recipes/{id}
func (h *RecipeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.recipes.DeleteRecipe(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "failed to delete recipe", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
