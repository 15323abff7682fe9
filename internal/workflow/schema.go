package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Structured results coming back from the reasoning gateway are decoded into
// the types below and validated before any stage logic trusts them.

const (
	ComplexitySimple      = "simple"
	ComplexityModerate    = "moderate"
	ComplexityComplex     = "complex"
	ComplexityVeryComplex = "very_complex"
)

const (
	ConstraintCritical  = "critical"
	ConstraintImportant = "important"
	ConstraintPreferred = "preferred"
)

const (
	BudgetWithinBudget = "within_budget"
	BudgetOverBudget   = "over_budget"
	BudgetNoBudgetSet  = "no_budget_set"
)

type DietaryResult struct {
	OverallComplexity       string   `json:"overall_complexity"`
	PrimaryConstraints      []string `json:"primary_constraints"`
	CrossContaminationRisks []string `json:"cross_contamination_risks"`
	SpecialAccommodations   []string `json:"special_accommodations"`
	Reasoning               string   `json:"reasoning"`
	ConfidenceScore         float64  `json:"confidence_score"`
}

func (r *DietaryResult) Validate() error {
	switch r.OverallComplexity {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex, ComplexityVeryComplex:
	default:
		return consistencyErr("unknown overall_complexity %q", r.OverallComplexity)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return consistencyErr("confidence_score %v outside [0,1]", r.ConfidenceScore)
	}
	return nil
}

type ConstraintPriority struct {
	Constraint string `json:"constraint"`
	Severity   string `json:"severity"`
	Reasoning  string `json:"reasoning"`
}

type RefinedDietaryResult struct {
	DietaryResult
	ConstraintPriorities []ConstraintPriority `json:"constraint_priorities"`

	// RefinesDecisionID links the stored refinement back to the decision
	// record of the analysis it refines. Set by the engine, not the model.
	RefinesDecisionID string `json:"refines_decision_id,omitempty"`
}

func (r *RefinedDietaryResult) Validate() error {
	if err := r.DietaryResult.Validate(); err != nil {
		return err
	}
	for _, cp := range r.ConstraintPriorities {
		switch cp.Severity {
		case ConstraintCritical, ConstraintImportant, ConstraintPreferred:
		default:
			return consistencyErr("unknown constraint severity %q", cp.Severity)
		}
	}
	return nil
}

type RecipeSelection struct {
	SelectedRecipeID   int64   `json:"selected_recipe_id"`
	RecipeName         string  `json:"recipe_name"`
	SelectionReasoning string  `json:"selection_reasoning"`
	EstimatedServings  int     `json:"estimated_servings"`
	ConfidenceScore    float64 `json:"confidence_score"`
}

func (r *RecipeSelection) Validate() error {
	if r.SelectedRecipeID <= 0 {
		return consistencyErr("missing selected_recipe_id")
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return consistencyErr("confidence_score %v outside [0,1]", r.ConfidenceScore)
	}
	return nil
}

type PriorityShoppingItem struct {
	Item      string `json:"item"`
	Priority  int    `json:"priority"`
	Reasoning string `json:"reasoning"`
}

type BudgetRecommendation struct {
	TotalEstimatedCost      float64                `json:"total_estimated_cost"`
	BudgetStatus            string                 `json:"budget_status"`
	CostSavingOpportunities []string               `json:"cost_saving_opportunities"`
	PriorityShoppingItems   []PriorityShoppingItem `json:"priority_shopping_items"`
	OptimizationReasoning   string                 `json:"optimization_reasoning"`
	ConfidenceScore         float64                `json:"confidence_score"`
}

func (r *BudgetRecommendation) Validate() error {
	switch r.BudgetStatus {
	case BudgetWithinBudget, BudgetOverBudget, BudgetNoBudgetSet:
	default:
		return consistencyErr("unknown budget_status %q", r.BudgetStatus)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return consistencyErr("confidence_score %v outside [0,1]", r.ConfidenceScore)
	}
	return nil
}

// PriorityFor resolves an item name against the recommendation's priority
// list by fuzzy substring match, defaulting to 3.
func (r *BudgetRecommendation) PriorityFor(name string) int {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, p := range r.PriorityShoppingItems {
		candidate := strings.ToLower(strings.TrimSpace(p.Item))
		if candidate == "" {
			continue
		}
		if strings.Contains(needle, candidate) || strings.Contains(candidate, needle) {
			if p.Priority >= 1 && p.Priority <= 5 {
				return p.Priority
			}
		}
	}
	return 3
}

func decodeInto(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode structured result: %w", err)
	}
	return nil
}

// -------------------- json_schema payloads --------------------

func objSchema(properties map[string]any) map[string]any {
	required := make([]string, 0, len(properties))
	for k := range properties {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func strArraySchema() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func confidenceSchema() map[string]any {
	return map[string]any{"type": "number", "minimum": 0, "maximum": 1}
}

func dietarySchema() map[string]any {
	return objSchema(map[string]any{
		"overall_complexity": map[string]any{
			"type": "string",
			"enum": []string{ComplexitySimple, ComplexityModerate, ComplexityComplex, ComplexityVeryComplex},
		},
		"primary_constraints":       strArraySchema(),
		"cross_contamination_risks": strArraySchema(),
		"special_accommodations":    strArraySchema(),
		"reasoning":                 map[string]any{"type": "string"},
		"confidence_score":          confidenceSchema(),
	})
}

func refinementSchema() map[string]any {
	base := dietarySchema()
	props := base["properties"].(map[string]any)
	props["constraint_priorities"] = map[string]any{
		"type": "array",
		"items": objSchema(map[string]any{
			"constraint": map[string]any{"type": "string"},
			"severity": map[string]any{
				"type": "string",
				"enum": []string{ConstraintCritical, ConstraintImportant, ConstraintPreferred},
			},
			"reasoning": map[string]any{"type": "string"},
		}),
	}
	return objSchema(props)
}

func selectionSchema() map[string]any {
	return objSchema(map[string]any{
		"selected_recipe_id":  map[string]any{"type": "integer"},
		"recipe_name":         map[string]any{"type": "string"},
		"selection_reasoning": map[string]any{"type": "string"},
		"estimated_servings":  map[string]any{"type": "integer"},
		"confidence_score":    confidenceSchema(),
	})
}

func budgetSchema() map[string]any {
	return objSchema(map[string]any{
		"total_estimated_cost": map[string]any{"type": "number"},
		"budget_status": map[string]any{
			"type": "string",
			"enum": []string{BudgetWithinBudget, BudgetOverBudget, BudgetNoBudgetSet},
		},
		"cost_saving_opportunities": strArraySchema(),
		"priority_shopping_items": map[string]any{
			"type": "array",
			"items": objSchema(map[string]any{
				"item":      map[string]any{"type": "string"},
				"priority":  map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
				"reasoning": map[string]any{"type": "string"},
			}),
		},
		"optimization_reasoning": map[string]any{"type": "string"},
		"confidence_score":       confidenceSchema(),
	})
}
