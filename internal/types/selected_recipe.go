package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MealTypeBreakfast = "breakfast"
	MealTypeLunch     = "lunch"
	MealTypeDinner    = "dinner"
)

// SelectedRecipe fills one meal slot (meal type + 1-based day index).
// Ingredients holds the quantity list already scaled to Servings.
type SelectedRecipe struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"plan_id"`
	MealType    string         `gorm:"column:meal_type;not null" json:"meal_type"`
	DayIndex    int            `gorm:"column:day_index;not null" json:"day_index"`
	RecipeID    int64          `gorm:"column:recipe_id;not null" json:"recipe_id"`
	RecipeName  string         `gorm:"column:recipe_name;not null" json:"recipe_name"`
	Reasoning   string         `gorm:"column:reasoning" json:"reasoning"`
	Servings    int            `gorm:"column:servings;not null" json:"servings"`
	Ingredients datatypes.JSON `gorm:"type:jsonb;column:ingredients" json:"ingredients"`
	Confidence  float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (SelectedRecipe) TableName() string { return "selected_recipe" }
