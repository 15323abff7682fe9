package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feastline/feastline-backend/internal/types"
	"github.com/feastline/feastline-backend/internal/workflow/calc"
)

// ConsolidateSelections runs stage three: a deterministic merge of every
// selection's scaled ingredients into one shopping list. No reasoning call
// is involved; the same selections always produce the same list.
func ConsolidateSelections(selected []*types.SelectedRecipe) ([]calc.Consolidated, error) {
	sources := make([]calc.Source, 0, len(selected))
	for _, s := range selected {
		var ingredients []calc.Ingredient
		if len(s.Ingredients) > 0 {
			if err := json.Unmarshal(s.Ingredients, &ingredients); err != nil {
				return nil, consistencyErr("selection %s day %d: malformed ingredients: %v",
					s.MealType, s.DayIndex, err)
			}
		}
		sources = append(sources, calc.Source{
			Name:        s.RecipeName,
			Ingredients: ingredients,
		})
	}
	return calc.Consolidate(sources), nil
}

func (e *Engine) consolidate(ctx context.Context, selected []*types.SelectedRecipe, ledger *Ledger) ([]calc.Consolidated, error) {
	_, finish := ledger.Begin(ctx, StageConsolidation, types.AgentRoleOrchestrator)
	consolidated, err := ConsolidateSelections(selected)
	if err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}
	finish(StepCompleted, fmt.Sprintf("%d distinct items", len(consolidated)), nil)
	return consolidated, nil
}
