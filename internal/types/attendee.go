package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
	SeverityMedical  = "medical"
)

func ValidSeverity(s string) bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere, SeverityMedical:
		return true
	}
	return false
}

// Attendee is created in batch before a workflow run and is immutable
// afterwards. DietaryRestrictions and Preferences hold JSON string arrays.
type Attendee struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID              uuid.UUID      `gorm:"type:uuid;not null;index" json:"plan_id"`
	Name                string         `gorm:"column:name;not null" json:"name"`
	DietaryRestrictions datatypes.JSON `gorm:"type:jsonb;column:dietary_restrictions" json:"dietary_restrictions"`
	Preferences         datatypes.JSON `gorm:"type:jsonb;column:preferences" json:"preferences"`
	Notes               string         `gorm:"column:notes" json:"notes"`
	Severity            string         `gorm:"column:severity;not null;default:mild" json:"severity"`
	CreatedAt           time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Attendee) TableName() string { return "attendee" }
