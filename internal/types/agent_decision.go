package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Stage role tags on decision records and workflow steps.
const (
	AgentRoleDietary      = "dietary"
	AgentRoleMealPlanner  = "meal_planner"
	AgentRoleBudget       = "budget"
	AgentRoleOrchestrator = "orchestrator"
)

// Decision types persisted by the orchestrator.
const (
	DecisionDietaryAnalysis    = "dietary_analysis"
	DecisionDietaryRefinement  = "dietary_refinement"
	DecisionRecipeSelection    = "recipe_selection"
	DecisionSelectionQuality   = "selection_quality_shortfall"
	DecisionBudgetOptimization = "budget_optimization"
	DecisionBudgetOverrun      = "budget_overrun_detected"
	DecisionWorkflowCompleted  = "workflow_completed"
	DecisionWorkflowFailed     = "workflow_failed"
)

// AgentDecision is an append-only audit record of one reasoning call or
// gate outcome. It is never updated after creation; overridden decisions
// (an initial dietary analysis superseded by a refinement) keep their row.
type AgentDecision struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"plan_id"`
	AgentRole    string         `gorm:"column:agent_role;not null;index" json:"agent_role"`
	DecisionType string         `gorm:"column:decision_type;not null" json:"decision_type"`
	Payload      datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	Reasoning    string         `gorm:"column:reasoning" json:"reasoning"`
	Confidence   *float64       `gorm:"column:confidence" json:"confidence,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (AgentDecision) TableName() string { return "agent_decision" }
