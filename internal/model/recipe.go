package model

type Recipe struct {
	Meta
	Name         string  `json:"name"`
	Description  *string `json:"description,omitempty"`
	Servings     int     `json:"servings"`
	PrepTime     int     `json:"prep_time"`
	CookTime     int     `json:"cook_time"`
	ImageRef     *string `json:"image_ref,omitempty"`
	Instructions string  `json:"instructions"`
	Favorite     bool    `json:"favorite"`
}

type RecipeIngredient struct {
	Meta
	RecipeID     string  `json:"recipe_id"`
	PantryItemID *string `json:"pantry_item_id,omitempty"`
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	Notes        *string `json:"notes,omitempty"`
	Position     int     `json:"position"`
}

type NewIngredient struct {
	PantryItemID *string `json:"pantry_item_id"`
	Name         string  `json:"name" validate:"notblank,max=200"`
	Quantity     float64 `json:"quantity" validate:"gte=0"`
	Unit         string  `json:"unit" validate:"max=32"`
	Notes        *string `json:"notes"`
}

// NewRecipe requires Servings >= 1 so meal-plan scaling never divides by zero.
type NewRecipe struct {
	Name         string          `json:"name" validate:"notblank,max=200"`
	Description  *string         `json:"description"`
	Servings     int             `json:"servings" validate:"min=1"`
	PrepTime     int             `json:"prep_time" validate:"gte=0"`
	CookTime     int             `json:"cook_time" validate:"gte=0"`
	ImageRef     *string         `json:"image_ref"`
	Instructions string          `json:"instructions"`
	Ingredients  []NewIngredient `json:"ingredients" validate:"dive"`
}

type RecipePatch struct {
	Name         *string `json:"name" validate:"omitempty,notblank,max=200"`
	Description  *string `json:"description"`
	Servings     *int    `json:"servings" validate:"omitempty,min=1"`
	PrepTime     *int    `json:"prep_time" validate:"omitempty,gte=0"`
	CookTime     *int    `json:"cook_time" validate:"omitempty,gte=0"`
	ImageRef     *string `json:"image_ref"`
	Instructions *string `json:"instructions"`
}

func (p RecipePatch) Apply(r *Recipe) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = p.Description
	}
	if p.Servings != nil {
		r.Servings = *p.Servings
	}
	if p.PrepTime != nil {
		r.PrepTime = *p.PrepTime
	}
	if p.CookTime != nil {
		r.CookTime = *p.CookTime
	}
	if p.ImageRef != nil {
		r.ImageRef = p.ImageRef
	}
	if p.Instructions != nil {
		r.Instructions = *p.Instructions
	}
}
