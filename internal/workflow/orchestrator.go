package workflow

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/types"
	"github.com/feastline/feastline-backend/internal/workflow/calc"
)

// RunResult is the terminal snapshot of one workflow run.
type RunResult struct {
	PlanID uuid.UUID    `json:"plan_id"`
	Status string       `json:"status"`
	Steps  []StepRecord `json:"steps"`
}

func (e *Engine) loadPlan(dbc dbctx.Context, planID uuid.UUID) (*types.MealPlan, error) {
	plan, err := e.plans.GetByID(dbc, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, validationErr("plan %s not found", planID)
	}
	return plan, nil
}

// Run drives the full four-stage workflow for a plan and owns its status
// lifecycle: processing while running, then completed or failed. A failed
// run keeps every step record and decision written before the failure.
func (e *Engine) Run(ctx context.Context, planID uuid.UUID) (*RunResult, error) {
	dbc := dbctx.New(ctx)
	plan, err := e.loadPlan(dbc, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status == types.PlanStatusProcessing {
		return nil, validationErr("plan %s is already processing", planID)
	}
	if plan, err = e.plans.UpdateStatus(dbc, planID, types.PlanStatusProcessing); err != nil {
		return nil, err
	}

	ledger := NewLedger(planID, e.observer)
	e.log.Info("Workflow run starting", "plan_id", planID.String(), "plan_name", plan.Name)

	analysis, err := e.AnalyzeDietary(ctx, dbc, plan, ledger)
	if err != nil {
		return e.failRun(dbc, planID, ledger, err)
	}
	selected, err := e.SelectRecipes(ctx, dbc, plan, analysis, ledger)
	if err != nil {
		return e.failRun(dbc, planID, ledger, err)
	}
	consolidated, err := e.consolidate(ctx, selected, ledger)
	if err != nil {
		return e.failRun(dbc, planID, ledger, err)
	}
	budgetAnalysis, err := e.OptimizeBudget(ctx, dbc, plan, consolidated, ledger)
	if err != nil {
		return e.failRun(dbc, planID, ledger, err)
	}

	summary := map[string]any{
		"slots_filled": len(selected),
		"total_cost":   budgetAnalysis.TotalCost,
		"steps":        ledger.Records(),
	}
	if _, err := e.recordDecision(dbc, planID, types.AgentRoleOrchestrator, types.DecisionWorkflowCompleted, summary, "All workflow stages completed.", nil); err != nil {
		return e.failRun(dbc, planID, ledger, err)
	}
	if _, err := e.plans.UpdateStatus(dbc, planID, types.PlanStatusCompleted); err != nil {
		return e.failRun(dbc, planID, ledger, err)
	}

	ledger.Finish(types.PlanStatusCompleted)
	e.log.Info("Workflow run completed", "plan_id", planID.String(), "slots", len(selected))
	return &RunResult{PlanID: planID, Status: types.PlanStatusCompleted, Steps: ledger.Records()}, nil
}

// failRun marks the plan failed and records the terminal decision. The
// partially written ledger is the point: it is preserved as-is.
func (e *Engine) failRun(dbc dbctx.Context, planID uuid.UUID, ledger *Ledger, cause error) (*RunResult, error) {
	payload := map[string]any{
		"error": cause.Error(),
		"steps": ledger.Records(),
	}
	if _, err := e.recordDecision(dbc, planID, types.AgentRoleOrchestrator, types.DecisionWorkflowFailed, payload, cause.Error(), nil); err != nil {
		e.log.Error("Failed to record workflow failure", "plan_id", planID.String(), "error", err)
	}
	if _, err := e.plans.UpdateStatus(dbc, planID, types.PlanStatusFailed); err != nil {
		e.log.Error("Failed to mark plan failed", "plan_id", planID.String(), "error", err)
	}
	ledger.Finish(types.PlanStatusFailed)
	e.log.Warn("Workflow run failed", "plan_id", planID.String(), "error", cause)
	return &RunResult{PlanID: planID, Status: types.PlanStatusFailed, Steps: ledger.Records()}, cause
}

// latestAnalysis rebuilds the effective dietary analysis from the decision
// trail: the newest refinement wins over the newest initial analysis.
func (e *Engine) latestAnalysis(dbc dbctx.Context, planID uuid.UUID) (*DietaryResult, error) {
	decisions, err := e.decisions.GetByPlanID(dbc, planID)
	if err != nil {
		return nil, err
	}
	var latest *types.AgentDecision
	for _, d := range decisions {
		if d.DecisionType == types.DecisionDietaryAnalysis || d.DecisionType == types.DecisionDietaryRefinement {
			latest = d
		}
	}
	if latest == nil {
		return nil, validationErr("plan %s has no dietary analysis; run the dietary stage first", planID)
	}
	var result DietaryResult
	if err := json.Unmarshal(latest.Payload, &result); err != nil {
		return nil, consistencyErr("stored dietary analysis is malformed: %v", err)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunDietaryStage executes stage one alone, without touching plan status.
func (e *Engine) RunDietaryStage(ctx context.Context, planID uuid.UUID) (*DietaryResult, error) {
	dbc := dbctx.New(ctx)
	plan, err := e.loadPlan(dbc, planID)
	if err != nil {
		return nil, err
	}
	return e.AnalyzeDietary(ctx, dbc, plan, NewLedger(planID, e.observer))
}

// RunSelectionStage executes stage two alone, reusing the most recent
// stored dietary analysis.
func (e *Engine) RunSelectionStage(ctx context.Context, planID uuid.UUID) ([]*types.SelectedRecipe, error) {
	dbc := dbctx.New(ctx)
	plan, err := e.loadPlan(dbc, planID)
	if err != nil {
		return nil, err
	}
	analysis, err := e.latestAnalysis(dbc, planID)
	if err != nil {
		return nil, err
	}
	return e.SelectRecipes(ctx, dbc, plan, analysis, NewLedger(planID, e.observer))
}

// RunConsolidationStage executes stage three alone over the stored
// selections.
func (e *Engine) RunConsolidationStage(ctx context.Context, planID uuid.UUID) ([]calc.Consolidated, error) {
	dbc := dbctx.New(ctx)
	if _, err := e.loadPlan(dbc, planID); err != nil {
		return nil, err
	}
	selected, err := e.selections.GetByPlanID(dbc, planID)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, validationErr("plan %s has no selected recipes; run the selection stage first", planID)
	}
	return e.consolidate(ctx, selected, NewLedger(planID, e.observer))
}

// RunBudgetStage executes stages three and four over the stored selections:
// consolidation feeds the optimizer directly.
func (e *Engine) RunBudgetStage(ctx context.Context, planID uuid.UUID) (*types.BudgetAnalysis, error) {
	dbc := dbctx.New(ctx)
	plan, err := e.loadPlan(dbc, planID)
	if err != nil {
		return nil, err
	}
	selected, err := e.selections.GetByPlanID(dbc, planID)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, validationErr("plan %s has no selected recipes; run the selection stage first", planID)
	}
	ledger := NewLedger(planID, e.observer)
	consolidated, err := e.consolidate(ctx, selected, ledger)
	if err != nil {
		return nil, err
	}
	return e.OptimizeBudget(ctx, dbc, plan, consolidated, ledger)
}
