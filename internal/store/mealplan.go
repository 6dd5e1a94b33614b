package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/grocery"
	"github.com/dukerupert/larder/internal/mealplan"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/record"
)

type MealPlanStore struct {
	rs *record.Store
}

func NewMealPlanStore(rs *record.Store) *MealPlanStore {
	return &MealPlanStore{rs: rs}
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func checkMealSource(recipeID, customName *string) error {
	if blank(recipeID) == blank(customName) {
		return apperr.Invalid("recipe_id", "exactly one of recipe_id and custom_meal_name must be set")
	}
	return nil
}

func rangeQuery(start, end time.Time) record.Query[model.MealPlan] {
	return record.From(record.MealPlans).
		Where(record.Gte("date", model.StartOfDay(start)), record.Lte("date", model.EndOfDay(end))).
		OrderBy(record.Asc("date"), record.Asc("position"))
}

// MealsInRange returns the meals planned from the start of start's day to
// the end of end's day inclusive.
func (s *MealPlanStore) MealsInRange(ctx context.Context, start, end time.Time) ([]model.MealPlan, error) {
	meals, err := rangeQuery(start, end).All(ctx, s.rs)
	if err != nil {
		return nil, fmt.Errorf("meals in range: %w", err)
	}
	return meals, nil
}

func (s *MealPlanStore) MealsOn(ctx context.Context, day time.Time) ([]model.MealPlan, error) {
	return s.MealsInRange(ctx, day, day)
}

func (s *MealPlanStore) ObserveRange(ctx context.Context, start, end time.Time) (*record.Subscription[model.MealPlan], error) {
	return record.Observe(ctx, s.rs, rangeQuery(start, end))
}

func (s *MealPlanStore) Meal(ctx context.Context, id string) (*model.MealPlan, error) {
	return record.Get(ctx, s.rs, record.MealPlans, id)
}

func slotPosition(ctx context.Context, tx *record.Tx, day time.Time, mt model.MealType) (int, error) {
	return record.From(record.MealPlans).
		Where(record.Eq("date", model.StartOfDay(day)), record.Eq("meal_type", string(mt))).
		Count(ctx, tx)
}

// AddMeal plans a meal. Exactly one of a recipe and a custom meal name must
// be given; the date is normalized to local midnight.
func (s *MealPlanStore) AddMeal(ctx context.Context, in model.NewMealPlan) (*model.MealPlan, error) {
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	if err := checkMealSource(in.RecipeID, in.CustomMealName); err != nil {
		return nil, err
	}

	m := &model.MealPlan{
		Date:     model.StartOfDay(in.Date),
		MealType: in.MealType,
		Notes:    in.Notes,
		Servings: in.Servings,
	}
	if !blank(in.RecipeID) {
		m.RecipeID = in.RecipeID
	} else {
		m.CustomMealName = in.CustomMealName
	}

	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		if m.RecipeID != nil {
			if _, err := record.Get(ctx, tx, record.Recipes, *m.RecipeID); err != nil {
				return err
			}
		}
		n, err := slotPosition(ctx, tx, m.Date, m.MealType)
		if err != nil {
			return err
		}
		m.Position = n
		return record.Create(tx, record.MealPlans, m)
	})
	if err != nil {
		return nil, fmt.Errorf("add meal: %w", err)
	}
	return m, nil
}

func (s *MealPlanStore) UpdateMeal(ctx context.Context, id string, p model.MealPlanPatch) (*model.MealPlan, error) {
	if err := apperr.Validate(p); err != nil {
		return nil, err
	}
	if p.RecipeID != nil && p.CustomMealName != nil {
		return nil, apperr.Invalid("recipe_id", "exactly one of recipe_id and custom_meal_name must be set")
	}
	if (p.RecipeID != nil && blank(p.RecipeID)) || (p.CustomMealName != nil && blank(p.CustomMealName)) {
		return nil, apperr.Invalid("recipe_id", "exactly one of recipe_id and custom_meal_name must be set")
	}

	var m *model.MealPlan
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		if p.RecipeID != nil {
			if _, err := record.Get(ctx, tx, record.Recipes, *p.RecipeID); err != nil {
				return err
			}
		}
		var err error
		m, err = record.Update(tx, record.MealPlans, id, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update meal: %w", err)
	}
	return m, nil
}

func (s *MealPlanStore) DeleteMeal(ctx context.Context, id string) error {
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		if _, err := record.Get(ctx, tx, record.MealPlans, id); err != nil {
			return err
		}
		return record.MarkDeleted(tx, record.MealPlans, id)
	})
	if err != nil {
		return fmt.Errorf("delete meal: %w", err)
	}
	return nil
}

// MarkLeftover plans a copy of a meal on another day, flagged as leftovers
// of the original day.
func (s *MealPlanStore) MarkLeftover(ctx context.Context, id string, day time.Time) (*model.MealPlan, error) {
	var m *model.MealPlan
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		src, err := record.Get(ctx, tx, record.MealPlans, id)
		if err != nil {
			return err
		}
		from := src.Date
		m = &model.MealPlan{
			Date:             model.StartOfDay(day),
			MealType:         src.MealType,
			RecipeID:         src.RecipeID,
			CustomMealName:   src.CustomMealName,
			Notes:            src.Notes,
			Servings:         src.Servings,
			IsLeftover:       true,
			LeftoverFromDate: &from,
		}
		n, err := slotPosition(ctx, tx, m.Date, m.MealType)
		if err != nil {
			return err
		}
		m.Position = n
		return record.Create(tx, record.MealPlans, m)
	})
	if err != nil {
		return nil, fmt.Errorf("mark leftover: %w", err)
	}
	return m, nil
}

// GenerateShoppingList creates a new list holding the scaled, consolidated
// ingredients of every recipe planned between start and end. The list and
// its items are written in one transaction. An empty range yields an empty list.
func (s *MealPlanStore) GenerateShoppingList(ctx context.Context, start, end time.Time, name string) (*model.List, []model.ListItem, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil, apperr.Invalid("name", "is required")
	}
	if end.Before(start) {
		return nil, nil, apperr.Invalid("end", "must not be before start")
	}

	var (
		l     *model.List
		items []model.ListItem
	)
	err := s.rs.Write(ctx, func(tx *record.Tx) error {
		meals, err := rangeQuery(start, end).All(ctx, tx)
		if err != nil {
			return err
		}
		ids := mealplan.RecipeIDs(meals)
		recipes, err := record.From(record.Recipes).Where(record.OneOf("id", ids...)).All(ctx, tx)
		if err != nil {
			return err
		}
		ings, err := ingredientsQuery(ids...).All(ctx, tx)
		if err != nil {
			return err
		}
		lines, err := mealplan.Aggregate(meals, recipes, ings)
		if err != nil {
			return err
		}

		n, err := record.From(record.Lists).Where(record.Eq("archived", false)).Count(ctx, tx)
		if err != nil {
			return err
		}
		l = &model.List{Name: name, Icon: "🍽️", Position: n}
		items = make([]model.ListItem, len(lines))
		for i, line := range lines {
			items[i] = model.ListItem{
				PantryItemID: line.PantryItemID,
				Name:         line.Name,
				Quantity:     line.Quantity,
				Unit:         line.Unit,
				Category:     grocery.Categorize(line.Name),
			}
		}
		return createListWithItems(tx, l, items)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("generate shopping list: %w", err)
	}
	return l, items, nil
}
