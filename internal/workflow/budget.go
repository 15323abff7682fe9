package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/types"
	"github.com/feastline/feastline-backend/internal/workflow/calc"
)

// itemsFrom prices the consolidated list with the local pricing table and
// routes each item to a store section by keyword on its name. The note keeps
// the contributing recipes visible on the shopping list.
func itemsFrom(consolidated []calc.Consolidated) []*types.ShoppingItem {
	items := make([]*types.ShoppingItem, 0, len(consolidated))
	for _, c := range consolidated {
		items = append(items, &types.ShoppingItem{
			Name:          c.Name,
			Quantity:      c.Quantity,
			Unit:          c.Unit,
			EstimatedCost: calc.EstimateCost(c.Name, c.Quantity, c.Unit),
			Category:      calc.Categorize(c.Name),
			Notes:         "used in: " + strings.Join(c.Sources, ", "),
		})
	}
	return items
}

func categoryBreakdown(items []*types.ShoppingItem) map[string]float64 {
	breakdown := make(map[string]float64)
	for _, it := range items {
		breakdown[it.Category] = calc.Round2(breakdown[it.Category] + it.EstimatedCost)
	}
	return breakdown
}

// OptimizeBudget runs stage four: price the consolidated list, ask the
// budget specialist to assess the fit and prioritize, then persist the
// shopping list and the analysis snapshot. A detected overrun adds an audit
// record; it never fails the run.
func (e *Engine) OptimizeBudget(ctx context.Context, dbc dbctx.Context, plan *types.MealPlan, consolidated []calc.Consolidated, ledger *Ledger) (*types.BudgetAnalysis, error) {
	ctx, finish := ledger.Begin(ctx, StageBudget, types.AgentRoleBudget)

	items := itemsFrom(consolidated)
	localTotal := 0.0
	for _, it := range items {
		localTotal += it.EstimatedCost
	}
	localTotal = calc.Round2(localTotal)

	deref := make([]types.ShoppingItem, 0, len(items))
	for _, it := range items {
		deref = append(deref, *it)
	}
	res, err := e.gateway.GenerateStructured(ctx, budgetSystemPrompt,
		budgetUserPrompt(plan, deref, localTotal), "budget_optimization", budgetSchema())
	if err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, fmt.Errorf("budget optimization: %w", err)
	}
	var rec BudgetRecommendation
	if err := decodeInto(res.Structured, &rec); err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}

	for _, it := range items {
		it.Priority = rec.PriorityFor(it.Name)
	}
	if _, err := e.shopping.ReplaceForPlan(dbc, plan.ID, items); err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}

	actual := rec.TotalEstimatedCost
	if actual <= 0 {
		actual = localTotal
	}
	breakdown, err := json.Marshal(categoryBreakdown(items))
	if err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}
	analysis, err := e.budgets.Create(dbc, &types.BudgetAnalysis{
		PlanID:      plan.ID,
		TotalCost:   calc.Round2(actual),
		Breakdown:   datatypes.JSON(breakdown),
		Suggestions: strings.Join(rec.CostSavingOpportunities, "; "),
		Reasoning:   rec.OptimizationReasoning,
	})
	if err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}
	if _, err := e.recordDecision(dbc, plan.ID, types.AgentRoleBudget, types.DecisionBudgetOptimization, &rec, rec.OptimizationReasoning, ptr(rec.ConfidenceScore)); err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}

	e.checkBudgetOverrun(dbc, plan, analysis.TotalCost)

	finish(StepCompleted, fmt.Sprintf("total $%.2f (%s)", analysis.TotalCost, rec.BudgetStatus), ptr(rec.ConfidenceScore))
	return analysis, nil
}

// OverrunRatio returns (actual - target) / target, or 0 when no positive
// target exists.
func OverrunRatio(actual float64, target *float64) float64 {
	if target == nil || *target <= 0 {
		return 0
	}
	return (actual - *target) / *target
}

func (e *Engine) checkBudgetOverrun(dbc dbctx.Context, plan *types.MealPlan, actual float64) {
	ratio := OverrunRatio(actual, plan.Budget)
	if ratio <= overrunThreshold {
		return
	}
	payload := map[string]any{
		"actual_total":  actual,
		"target_budget": *plan.Budget,
		"overrun_ratio": calc.Round2(ratio),
	}
	reasoning := fmt.Sprintf("Estimated total $%.2f exceeds the $%.2f budget by %.0f%%.",
		actual, *plan.Budget, ratio*100)
	if _, err := e.recordDecision(dbc, plan.ID, types.AgentRoleBudget, types.DecisionBudgetOverrun, payload, reasoning, nil); err != nil {
		e.log.Warn("Failed to record budget overrun",
			"plan_id", plan.ID.String(), "error", err)
	}
}
