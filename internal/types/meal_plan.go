package types

import (
	"time"

	"github.com/google/uuid"
)

// Plan lifecycle. Transitions are driven exclusively by the workflow
// orchestrator: planning -> processing -> completed | failed.
const (
	PlanStatusPlanning   = "planning"
	PlanStatusProcessing = "processing"
	PlanStatusCompleted  = "completed"
	PlanStatusFailed     = "failed"
)

func ValidPlanStatus(s string) bool {
	switch s {
	case PlanStatusPlanning, PlanStatusProcessing, PlanStatusCompleted, PlanStatusFailed:
		return true
	}
	return false
}

type MealPlan struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string     `gorm:"column:name;not null" json:"name"`
	AttendeeCount int        `gorm:"column:attendee_count;not null" json:"attendee_count"`
	Budget        *float64   `gorm:"column:budget" json:"budget,omitempty"`
	StartDate     time.Time  `gorm:"column:start_date;not null" json:"start_date"`
	EndDate       time.Time  `gorm:"column:end_date;not null" json:"end_date"`
	Status        string     `gorm:"column:status;not null;index;default:planning" json:"status"`
	CreatedAt     time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:now()" json:"updated_at"`

	Attendees       []Attendee       `gorm:"foreignKey:PlanID" json:"attendees,omitempty"`
	Decisions       []AgentDecision  `gorm:"foreignKey:PlanID" json:"decisions,omitempty"`
	SelectedRecipes []SelectedRecipe `gorm:"foreignKey:PlanID" json:"selected_recipes,omitempty"`
	ShoppingItems   []ShoppingItem   `gorm:"foreignKey:PlanID" json:"shopping_items,omitempty"`
	BudgetAnalyses  []BudgetAnalysis `gorm:"foreignKey:PlanID" json:"budget_analyses,omitempty"`
}

func (MealPlan) TableName() string { return "meal_plan" }
