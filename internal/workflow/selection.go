package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/feastline/feastline-backend/internal/clients/spoonacular"
	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/types"
	"github.com/feastline/feastline-backend/internal/workflow/calc"
)

func catalogMealType(mealType string) string {
	if mealType == types.MealTypeBreakfast {
		return "breakfast"
	}
	return "main course"
}

func readyCeiling(mealType string) int {
	if mealType == types.MealTypeBreakfast {
		return breakfastReadyCeiling
	}
	return defaultReadyCeiling
}

// candidatesForSlot searches the catalog under the full dietary filters,
// then falls back to a meal-type-only search when nothing qualifies.
func (e *Engine) candidatesForSlot(ctx context.Context, slot Slot, sc SearchConstraints) ([]*spoonacular.Recipe, error) {
	result, err := e.catalog.Search(ctx, spoonacular.SearchFilters{
		Diet:         sc.Diet,
		Intolerances: sc.Intolerances,
		MealType:     catalogMealType(slot.MealType),
		MaxReadyTime: readyCeiling(slot.MealType),
		Number:       searchCap,
	})
	if err != nil {
		return nil, fmt.Errorf("candidate search for %s: %w", slot, err)
	}
	if len(result.Recipes) > 0 {
		return result.Recipes, nil
	}

	e.log.Warn("Filtered search empty; falling back to meal-type-only search",
		"slot", slot.String(), "diet", sc.Diet)
	fallback, err := e.catalog.Search(ctx, spoonacular.SearchFilters{
		MealType: catalogMealType(slot.MealType),
		Number:   fallbackSearchCap,
	})
	if err != nil {
		return nil, fmt.Errorf("fallback search for %s: %w", slot, err)
	}
	if len(fallback.Recipes) == 0 {
		return nil, consistencyErr("no candidate recipes found for slot %s", slot)
	}
	return fallback.Recipes, nil
}

// scaledIngredients converts the recipe's ingredient list to the plan's
// head count and returns it serialized for storage.
func scaledIngredients(recipe *spoonacular.Recipe, targetServings int) ([]byte, error) {
	ingredients := make([]calc.Ingredient, 0, len(recipe.Ingredients))
	for _, ing := range recipe.Ingredients {
		ingredients = append(ingredients, calc.Ingredient{
			Name:   ing.Name,
			Amount: ing.Amount,
			Unit:   ing.Unit,
			Aisle:  ing.Aisle,
		})
	}
	scaled, err := calc.Scale(ingredients, recipe.Servings, targetServings)
	if err != nil {
		return nil, consistencyErr("recipe %d %q: %v", recipe.ID, recipe.Title, err)
	}
	return json.Marshal(scaled)
}

// SelectRecipes runs stage two: one paced selection per slot, in slot
// order. Re-running the stage replaces the previous selection set.
func (e *Engine) SelectRecipes(ctx context.Context, dbc dbctx.Context, plan *types.MealPlan, analysis *DietaryResult, ledger *Ledger) ([]*types.SelectedRecipe, error) {
	ctx, finish := ledger.Begin(ctx, StageSelection, types.AgentRoleMealPlanner)

	slots, err := EnumerateSlots(plan.StartDate, plan.EndDate)
	if err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}
	if err := e.selections.DeleteByPlanID(dbc, plan.ID); err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}

	sc := ConstraintsFrom(analysis)
	selected := make([]*types.SelectedRecipe, 0, len(slots))
	for _, slot := range slots {
		if err := e.pacer.Wait(ctx); err != nil {
			finish(StepFailed, err.Error(), nil)
			return nil, err
		}
		row, err := e.selectForSlot(ctx, dbc, plan, analysis, sc, slot)
		if err != nil {
			finish(StepFailed, fmt.Sprintf("slot %s: %v", slot, err), nil)
			return nil, err
		}
		selected = append(selected, row)
	}

	e.checkSelectionQuality(dbc, plan, selected)

	finish(StepCompleted, fmt.Sprintf("%d slots filled", len(selected)), nil)
	return selected, nil
}

func (e *Engine) selectForSlot(ctx context.Context, dbc dbctx.Context, plan *types.MealPlan, analysis *DietaryResult, sc SearchConstraints, slot Slot) (*types.SelectedRecipe, error) {
	candidates, err := e.candidatesForSlot(ctx, slot, sc)
	if err != nil {
		return nil, err
	}
	if len(candidates) > candidateLimit {
		candidates = candidates[:candidateLimit]
	}

	deref := make([]spoonacular.Recipe, 0, len(candidates))
	byID := make(map[int64]*spoonacular.Recipe, len(candidates))
	for _, c := range candidates {
		deref = append(deref, *c)
		byID[c.ID] = c
	}

	res, err := e.gateway.GenerateStructured(ctx, selectionSystemPrompt,
		selectionUserPrompt(slot, plan, analysis, deref), "recipe_selection", selectionSchema())
	if err != nil {
		return nil, fmt.Errorf("recipe selection: %w", err)
	}
	var choice RecipeSelection
	if err := decodeInto(res.Structured, &choice); err != nil {
		return nil, err
	}
	if err := choice.Validate(); err != nil {
		return nil, err
	}

	recipe, ok := byID[choice.SelectedRecipeID]
	if !ok {
		return nil, consistencyErr("selected recipe %d is not among the %d candidates for slot %s",
			choice.SelectedRecipeID, len(deref), slot)
	}
	if !recipe.HasDetail() {
		detail, err := e.catalog.GetRecipe(ctx, recipe.ID)
		if err != nil {
			return nil, fmt.Errorf("recipe detail %d: %w", recipe.ID, err)
		}
		recipe = detail
	}

	ingredients, err := scaledIngredients(recipe, plan.AttendeeCount)
	if err != nil {
		return nil, err
	}

	row, err := e.selections.Create(dbc, &types.SelectedRecipe{
		PlanID:      plan.ID,
		MealType:    slot.MealType,
		DayIndex:    slot.DayIndex,
		RecipeID:    recipe.ID,
		RecipeName:  recipe.Title,
		Reasoning:   choice.SelectionReasoning,
		Servings:    plan.AttendeeCount,
		Ingredients: ingredients,
		Confidence:  choice.ConfidenceScore,
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"slot":               slot,
		"selected_recipe_id": recipe.ID,
		"recipe_name":        recipe.Title,
		"candidate_ids":      candidateIDs(deref),
	}
	if _, err := e.recordDecision(dbc, plan.ID, types.AgentRoleMealPlanner, types.DecisionRecipeSelection, payload, choice.SelectionReasoning, ptr(choice.ConfidenceScore)); err != nil {
		return nil, err
	}
	return row, nil
}

func candidateIDs(candidates []spoonacular.Recipe) []int64 {
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return ids
}

// SelectionQuality summarizes a finished selection set.
type SelectionQuality struct {
	VarietyScore  float64 `json:"variety_score"`
	AvgConfidence float64 `json:"avg_confidence"`
	Slots         int     `json:"slots"`
	DistinctMeals int     `json:"distinct_meals"`
}

// QualityOf computes variety (distinct recipe names over slots) and mean
// selection confidence.
func QualityOf(selected []*types.SelectedRecipe) SelectionQuality {
	q := SelectionQuality{Slots: len(selected)}
	if len(selected) == 0 {
		return q
	}
	names := map[string]bool{}
	sum := 0.0
	for _, s := range selected {
		names[strings.ToLower(s.RecipeName)] = true
		sum += s.Confidence
	}
	q.DistinctMeals = len(names)
	q.VarietyScore = calc.Round2(float64(len(names)) / float64(len(selected)))
	q.AvgConfidence = calc.Round2(sum / float64(len(selected)))
	return q
}

// checkSelectionQuality records a shortfall decision when the finished set
// is repetitive or under-confident. The gates observe; they never fail the
// run, and a recording error only logs.
func (e *Engine) checkSelectionQuality(dbc dbctx.Context, plan *types.MealPlan, selected []*types.SelectedRecipe) {
	q := QualityOf(selected)
	if q.VarietyScore >= varietyFloor && q.AvgConfidence >= avgConfidenceFloor {
		return
	}
	reasoning := fmt.Sprintf("Selection quality below target: variety %.2f (floor %.2f), avg confidence %.2f (floor %.2f).",
		q.VarietyScore, varietyFloor, q.AvgConfidence, avgConfidenceFloor)
	if _, err := e.recordDecision(dbc, plan.ID, types.AgentRoleMealPlanner, types.DecisionSelectionQuality, q, reasoning, ptr(q.AvgConfidence)); err != nil {
		e.log.Warn("Failed to record selection quality shortfall",
			"plan_id", plan.ID.String(), "error", err)
	}
}
