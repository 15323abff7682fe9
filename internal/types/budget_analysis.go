package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BudgetAnalysis is one snapshot per optimization run. Multiple snapshots
// may exist for a plan; the latest by CreatedAt is authoritative.
type BudgetAnalysis struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"plan_id"`
	TotalCost   float64        `gorm:"column:total_cost;not null" json:"total_cost"`
	Breakdown   datatypes.JSON `gorm:"type:jsonb;column:breakdown" json:"breakdown"`
	Suggestions string         `gorm:"column:suggestions" json:"suggestions"`
	Reasoning   string         `gorm:"column:reasoning" json:"reasoning"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (BudgetAnalysis) TableName() string { return "budget_analysis" }
