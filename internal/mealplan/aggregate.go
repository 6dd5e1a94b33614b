// Package mealplan turns planned meals into shopping list lines.
package mealplan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/model"
)

// Line is one consolidated ingredient. Lines are keyed by exact name and
// unit; no unit conversion is attempted, so "2 cup flour" and "100 g flour"
// stay separate.
type Line struct {
	Name         string
	Unit         string
	Quantity     float64
	PantryItemID *string
}

type key struct{ name, unit string }

// Aggregate scales every ingredient of every planned recipe by
// meal servings / recipe servings and sums the results per (name, unit).
// Meals without a recipe, or whose recipe is not in recipes, add nothing.
// A recipe with servings below 1 is a ValidationError.
// Lines are ordered by name, case-insensitively, then unit.
func Aggregate(meals []model.MealPlan, recipes []model.Recipe, ingredients []model.RecipeIngredient) ([]Line, error) {
	byID := make(map[string]model.Recipe, len(recipes))
	for _, r := range recipes {
		byID[r.ID] = r
	}
	ingsByRecipe := make(map[string][]model.RecipeIngredient)
	for _, ing := range ingredients {
		ingsByRecipe[ing.RecipeID] = append(ingsByRecipe[ing.RecipeID], ing)
	}

	acc := make(map[key]*Line)
	for _, m := range meals {
		if m.RecipeID == nil {
			continue
		}
		r, ok := byID[*m.RecipeID]
		if !ok {
			continue
		}
		if r.Servings < 1 {
			return nil, apperr.Invalid("servings", fmt.Sprintf("recipe %q must serve at least 1", r.Name))
		}
		scale := float64(m.Servings) / float64(r.Servings)
		for _, ing := range ingsByRecipe[r.ID] {
			k := key{ing.Name, ing.Unit}
			l, ok := acc[k]
			if !ok {
				l = &Line{Name: ing.Name, Unit: ing.Unit}
				acc[k] = l
			}
			l.Quantity += ing.Quantity * scale
			if l.PantryItemID == nil && ing.PantryItemID != nil {
				l.PantryItemID = ing.PantryItemID
			}
		}
	}

	lines := make([]Line, 0, len(acc))
	for _, l := range acc {
		lines = append(lines, *l)
	}
	sort.Slice(lines, func(i, j int) bool {
		a, b := strings.ToLower(lines[i].Name), strings.ToLower(lines[j].Name)
		if a != b {
			return a < b
		}
		if lines[i].Unit != lines[j].Unit {
			return lines[i].Unit < lines[j].Unit
		}
		return lines[i].Name < lines[j].Name
	})
	return lines, nil
}

// RecipeIDs returns the distinct recipe ids referenced by meals, in first-seen order.
func RecipeIDs(meals []model.MealPlan) []string {
	seen := make(map[string]bool)
	ids := []string{}
	for _, m := range meals {
		if m.RecipeID == nil || seen[*m.RecipeID] {
			continue
		}
		seen[*m.RecipeID] = true
		ids = append(ids, *m.RecipeID)
	}
	return ids
}
