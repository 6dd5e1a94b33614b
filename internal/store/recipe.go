package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/record"
)

type RecipeStore struct {
	rs *record.Store
}

func NewRecipeStore(rs *record.Store) *RecipeStore {
	return &RecipeStore{rs: rs}
}

func (s *RecipeStore) Recipes(ctx context.Context) ([]model.Recipe, error) {
	recipes, err := record.From(record.Recipes).OrderBy(record.Asc("name")).All(ctx, s.rs)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	return recipes, nil
}

func (s *RecipeStore) Favorites(ctx context.Context) ([]model.Recipe, error) {
	recipes, err := record.From(record.Recipes).
		Where(record.Eq("favorite", true)).
		OrderBy(record.Asc("name")).
		All(ctx, s.rs)
	if err != nil {
		return nil, fmt.Errorf("list favorite recipes: %w", err)
	}
	return recipes, nil
}

func (s *RecipeStore) Recipe(ctx context.Context, id string) (*model.Recipe, error) {
	return record.Get(ctx, s.rs, record.Recipes, id)
}

func ingredientsQuery(recipeIDs ...string) record.Query[model.RecipeIngredient] {
	return record.From(record.RecipeIngredients).
		Where(record.OneOf("recipe_id", recipeIDs...)).
		OrderBy(record.Asc("position"))
}

func (s *RecipeStore) Ingredients(ctx context.Context, recipeID string) ([]model.RecipeIngredient, error) {
	ings, err := ingredientsQuery(recipeID).All(ctx, s.rs)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	return ings, nil
}

func createIngredients(tx *record.Tx, recipeID string, in []model.NewIngredient) ([]model.RecipeIngredient, error) {
	out := make([]model.RecipeIngredient, len(in))
	for i, ni := range in {
		out[i] = model.RecipeIngredient{
			RecipeID:     recipeID,
			PantryItemID: ni.PantryItemID,
			Name:         ni.Name,
			Quantity:     ni.Quantity,
			Unit:         ni.Unit,
			Notes:        ni.Notes,
			Position:     i,
		}
		if err := record.Create(tx, record.RecipeIngredients, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CreateRecipe stores a recipe and its ingredients in one transaction.
func (s *RecipeStore) CreateRecipe(ctx context.Context, in model.NewRecipe) (*model.Recipe, []model.RecipeIngredient, error) {
	if err := apperr.Validate(in); err != nil {
		return nil, nil, err
	}
	r := &model.Recipe{
		Name:         in.Name,
		Description:  in.Description,
		Servings:     in.Servings,
		PrepTime:     in.PrepTime,
		CookTime:     in.CookTime,
		ImageRef:     in.ImageRef,
		Instructions: in.Instructions,
	}
	var ings []model.RecipeIngredient
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		if err := record.Create(tx, record.Recipes, r); err != nil {
			return err
		}
		var err error
		ings, err = createIngredients(tx, r.ID, in.Ingredients)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create recipe: %w", err)
	}
	return r, ings, nil
}

func (s *RecipeStore) UpdateRecipe(ctx context.Context, id string, p model.RecipePatch) (*model.Recipe, error) {
	if err := apperr.Validate(p); err != nil {
		return nil, err
	}
	return s.update(ctx, id, p)
}

func (s *RecipeStore) update(ctx context.Context, id string, p record.Patch[model.Recipe]) (*model.Recipe, error) {
	var r *model.Recipe
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		var err error
		r, err = record.Update(tx, record.Recipes, id, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update recipe: %w", err)
	}
	return r, nil
}

func (s *RecipeStore) ToggleFavorite(ctx context.Context, id string) (*model.Recipe, error) {
	return s.update(ctx, id, record.PatchFunc[model.Recipe](func(r *model.Recipe) { r.Favorite = !r.Favorite }))
}

// SetIngredients replaces the ingredient list of a recipe.
func (s *RecipeStore) SetIngredients(ctx context.Context, recipeID string, in []model.NewIngredient) ([]model.RecipeIngredient, error) {
	for i := range in {
		if err := apperr.Validate(in[i]); err != nil {
			return nil, err
		}
	}
	var ings []model.RecipeIngredient
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		if _, err := record.Get(ctx, tx, record.Recipes, recipeID); err != nil {
			return err
		}
		if _, err := record.MarkDeletedWhere(tx, record.RecipeIngredients, record.Eq("recipe_id", recipeID)); err != nil {
			return err
		}
		var err error
		ings, err = createIngredients(tx, recipeID, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set ingredients: %w", err)
	}
	return ings, nil
}

// DeleteRecipe soft-deletes the recipe and its ingredients. Meal plans that
// reference it keep the id and contribute nothing to generated lists.
func (s *RecipeStore) DeleteRecipe(ctx context.Context, id string) error {
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		if _, err := record.Get(ctx, tx, record.Recipes, id); err != nil {
			return err
		}
		if _, err := record.MarkDeletedWhere(tx, record.RecipeIngredients, record.Eq("recipe_id", id)); err != nil {
			return err
		}
		return record.MarkDeleted(tx, record.Recipes, id)
	})
	if err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}
	return nil
}
