package workflow

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/feastline/feastline-backend/internal/clients/openai"
	"github.com/feastline/feastline-backend/internal/clients/spoonacular"
	"github.com/feastline/feastline-backend/internal/data/repos"
	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
)

// Tunables shared by the stages.
const (
	// Refinement triggers when the first dietary pass is very complex or
	// the analyst's own confidence is low.
	refinementConfidenceFloor = 0.7

	// Candidate search caps: the filtered search and the meal-type-only
	// fallback when the filtered search comes back empty.
	searchCap         = 20
	fallbackSearchCap = 10

	// Candidates actually offered to the selection call.
	candidateLimit = 5

	// Ready-time ceilings in minutes.
	breakfastReadyCeiling = 30
	defaultReadyCeiling   = 60

	// Spacing between successive slot selections.
	DefaultPacingInterval = 500 * time.Millisecond

	// Quality gates over the finished selection set. Observed and
	// recorded, never fatal.
	varietyFloor       = 0.6
	avgConfidenceFloor = 0.7

	// Budget overrun threshold: (actual - target) / target.
	overrunThreshold = 0.15
)

// Engine runs the four-stage planning workflow. Stages can also be invoked
// individually; Run drives all four in order and owns the plan lifecycle.
type Engine struct {
	log        *logger.Logger
	gateway    openai.Client
	catalog    spoonacular.Client
	plans      repos.PlanRepo
	attendees  repos.AttendeeRepo
	decisions  repos.DecisionRepo
	selections repos.SelectedRecipeRepo
	shopping   repos.ShoppingItemRepo
	budgets    repos.BudgetAnalysisRepo
	pacer      Pacer
	observer   StepObserver
}

type EngineDeps struct {
	Log        *logger.Logger
	Gateway    openai.Client
	Catalog    spoonacular.Client
	Plans      repos.PlanRepo
	Attendees  repos.AttendeeRepo
	Decisions  repos.DecisionRepo
	Selections repos.SelectedRecipeRepo
	Shopping   repos.ShoppingItemRepo
	Budgets    repos.BudgetAnalysisRepo
	Pacer      Pacer
	Observer   StepObserver
}

func NewEngine(d EngineDeps) *Engine {
	pacer := d.Pacer
	if pacer == nil {
		pacer = NewPacer(DefaultPacingInterval)
	}
	observer := d.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	return &Engine{
		log:        d.Log.With("component", "WorkflowEngine"),
		gateway:    d.Gateway,
		catalog:    d.Catalog,
		plans:      d.Plans,
		attendees:  d.Attendees,
		decisions:  d.Decisions,
		selections: d.Selections,
		shopping:   d.Shopping,
		budgets:    d.Budgets,
		pacer:      pacer,
		observer:   observer,
	}
}

// recordDecision appends one audit row. Decision rows are written as the run
// progresses so a failed run keeps everything recorded up to the failure.
func (e *Engine) recordDecision(dbc dbctx.Context, planID uuid.UUID, role, decisionType string, payload any, reasoning string, confidence *float64) (*types.AgentDecision, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return e.decisions.Create(dbc, &types.AgentDecision{
		PlanID:       planID,
		AgentRole:    role,
		DecisionType: decisionType,
		Payload:      datatypes.JSON(raw),
		Reasoning:    reasoning,
		Confidence:   confidence,
	})
}

func ptr(v float64) *float64 { return &v }
