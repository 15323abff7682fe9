package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/types"
)

// Diet names the recipe catalog understands as a diet filter, and the
// intolerance vocabulary it accepts. Anything outside these sets still
// informs the reasoning prompts but cannot become a catalog filter.
var catalogDiets = map[string]bool{
	"vegan":      true,
	"vegetarian": true,
	"ketogenic":  true,
	"paleo":      true,
	"whole30":    true,
}

var catalogIntolerances = map[string]bool{
	"dairy":   true,
	"gluten":  true,
	"egg":     true,
	"peanut":  true,
	"seafood": true,
	"soy":     true,
	"sesame":  true,
	"sulfite": true,
}

// SearchConstraints is the catalog-facing projection of a dietary analysis.
type SearchConstraints struct {
	Diet         string
	Intolerances []string
}

// ConstraintsFrom maps the analysis' primary constraints onto catalog
// filters. Diets are comma-joined; both lists come out sorted so equal
// analyses produce equal queries.
func ConstraintsFrom(analysis *DietaryResult) SearchConstraints {
	dietSet := map[string]bool{}
	intolSet := map[string]bool{}
	for _, c := range analysis.PrimaryConstraints {
		token := strings.ToLower(strings.TrimSpace(c))
		token = strings.ReplaceAll(token, " ", "")
		if catalogDiets[token] {
			dietSet[token] = true
		}
		// Accept both "dairy" and "dairy-free" style tokens.
		token = strings.TrimSuffix(token, "-free")
		if catalogIntolerances[token] {
			intolSet[token] = true
		}
	}
	diets := make([]string, 0, len(dietSet))
	for d := range dietSet {
		diets = append(diets, d)
	}
	sort.Strings(diets)
	intolerances := make([]string, 0, len(intolSet))
	for i := range intolSet {
		intolerances = append(intolerances, i)
	}
	sort.Strings(intolerances)
	return SearchConstraints{Diet: strings.Join(diets, ","), Intolerances: intolerances}
}

// AnalyzeDietary runs stage one: a structured dietary analysis of the
// group, refined by a second senior pass when the first comes back very
// complex or under-confident. A failed refinement falls back to the first
// analysis and the run continues.
func (e *Engine) AnalyzeDietary(ctx context.Context, dbc dbctx.Context, plan *types.MealPlan, ledger *Ledger) (*DietaryResult, error) {
	ctx, finish := ledger.Begin(ctx, StageDietary, types.AgentRoleDietary)

	attendees, err := e.attendees.GetByPlanID(dbc, plan.ID)
	if err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}

	// The roster is the stage's whole input. An empty one is a contract
	// violation, rejected before any gateway call.
	if len(attendees) == 0 {
		err := validationErr("plan %s has no attendees; add the roster before running the workflow", plan.ID)
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}

	deref := make([]types.Attendee, 0, len(attendees))
	for _, a := range attendees {
		deref = append(deref, *a)
	}

	res, err := e.gateway.GenerateStructured(ctx, dietarySystemPrompt, dietaryUserPrompt(plan, deref), "dietary_analysis", dietarySchema())
	if err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, fmt.Errorf("dietary analysis: %w", err)
	}
	var first DietaryResult
	if err := decodeInto(res.Structured, &first); err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}
	if err := first.Validate(); err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}
	firstDecision, err := e.recordDecision(dbc, plan.ID, types.AgentRoleDietary, types.DecisionDietaryAnalysis, &first, first.Reasoning, ptr(first.ConfidenceScore))
	if err != nil {
		finish(StepFailed, err.Error(), nil)
		return nil, err
	}

	result := &first
	if first.OverallComplexity == ComplexityVeryComplex || first.ConfidenceScore < refinementConfidenceFloor {
		if refined, err := e.refineDietary(ctx, dbc, plan, &first, firstDecision.ID); err != nil {
			// Refinement is advisory. Keep the first analysis and move on.
			e.log.Warn("Dietary refinement failed; using initial analysis",
				"plan_id", plan.ID.String(), "error", err)
		} else {
			result = &refined.DietaryResult
		}
	}

	finish(StepCompleted, "complexity "+result.OverallComplexity, ptr(result.ConfidenceScore))
	return result, nil
}

func (e *Engine) refineDietary(ctx context.Context, dbc dbctx.Context, plan *types.MealPlan, first *DietaryResult, firstDecisionID uuid.UUID) (*RefinedDietaryResult, error) {
	res, err := e.gateway.GenerateStructured(ctx, refinementSystemPrompt, refinementUserPrompt(first), "dietary_refinement", refinementSchema())
	if err != nil {
		return nil, err
	}
	var refined RefinedDietaryResult
	if err := decodeInto(res.Structured, &refined); err != nil {
		return nil, err
	}
	if err := refined.Validate(); err != nil {
		return nil, err
	}
	refined.RefinesDecisionID = firstDecisionID.String()
	if _, err := e.recordDecision(dbc, plan.ID, types.AgentRoleDietary, types.DecisionDietaryRefinement, &refined, refined.Reasoning, ptr(refined.ConfidenceScore)); err != nil {
		return nil, err
	}
	return &refined, nil
}
