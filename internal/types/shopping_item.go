package types

import (
	"time"

	"github.com/google/uuid"
)

// ShoppingItem is one consolidated purchasable quantity, derived entirely
// from the plan's selected recipes. The set is recomputed (replaced, not
// merged) on every budget-optimization run.
type ShoppingItem struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID        uuid.UUID `gorm:"type:uuid;not null;index" json:"plan_id"`
	Name          string    `gorm:"column:name;not null" json:"name"`
	Quantity      float64   `gorm:"column:quantity;not null" json:"quantity"`
	Unit          string    `gorm:"column:unit" json:"unit"`
	EstimatedCost float64   `gorm:"column:estimated_cost;not null;default:0" json:"estimated_cost"`
	Category      string    `gorm:"column:category;not null;default:other" json:"category"`
	Notes         string    `gorm:"column:notes" json:"notes"`
	Priority      int       `gorm:"column:priority;not null;default:3" json:"priority"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ShoppingItem) TableName() string { return "shopping_item" }
