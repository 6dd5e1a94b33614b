package model

import (
	"strings"
	"time"
)

type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

type MealPlan struct {
	Meta
	Date             time.Time  `json:"date"`
	MealType         MealType   `json:"meal_type"`
	RecipeID         *string    `json:"recipe_id,omitempty"`
	CustomMealName   *string    `json:"custom_meal_name,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	Servings         int        `json:"servings"`
	IsLeftover       bool       `json:"is_leftover"`
	LeftoverFromDate *time.Time `json:"leftover_from_date,omitempty"`
	Position         int        `json:"position"`
}

// IsCustomMeal reports whether the entry is a named meal without a recipe.
func (m MealPlan) IsCustomMeal() bool {
	return m.CustomMealName != nil && strings.TrimSpace(*m.CustomMealName) != ""
}

// NewMealPlan must set exactly one of RecipeID and CustomMealName.
type NewMealPlan struct {
	Date           time.Time `json:"date" validate:"required"`
	MealType       MealType  `json:"meal_type" validate:"oneof=breakfast lunch dinner snack"`
	RecipeID       *string   `json:"recipe_id"`
	CustomMealName *string   `json:"custom_meal_name" validate:"omitempty,max=200"`
	Notes          *string   `json:"notes"`
	Servings       int       `json:"servings" validate:"min=1"`
}

type MealPlanPatch struct {
	Date           *time.Time `json:"date"`
	MealType       *MealType  `json:"meal_type" validate:"omitempty,oneof=breakfast lunch dinner snack"`
	RecipeID       *string    `json:"recipe_id"`
	CustomMealName *string    `json:"custom_meal_name" validate:"omitempty,max=200"`
	Notes          *string    `json:"notes"`
	Servings       *int       `json:"servings" validate:"omitempty,min=1"`
}

// Apply sets the provided fields. Setting a recipe clears the custom name and
// vice versa, so an update cannot break the recipe/custom exclusivity.
func (p MealPlanPatch) Apply(m *MealPlan) {
	if p.Date != nil {
		d := StartOfDay(*p.Date)
		m.Date = d
	}
	if p.MealType != nil {
		m.MealType = *p.MealType
	}
	if p.RecipeID != nil {
		m.RecipeID = p.RecipeID
		m.CustomMealName = nil
	}
	if p.CustomMealName != nil {
		m.CustomMealName = p.CustomMealName
		m.RecipeID = nil
	}
	if p.Notes != nil {
		m.Notes = p.Notes
	}
	if p.Servings != nil {
		m.Servings = *p.Servings
	}
}
