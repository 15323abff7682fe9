package workflow

import (
	"fmt"
	"math"
	"time"

	"github.com/feastline/feastline-backend/internal/types"
)

// Slot is one meal to be filled: a meal type on a 1-based day index.
type Slot struct {
	MealType string `json:"meal_type"`
	DayIndex int    `json:"day_index"`
}

func (s Slot) String() string {
	return fmt.Sprintf("%s_day%d", s.MealType, s.DayIndex)
}

var mealTypes = []string{types.MealTypeBreakfast, types.MealTypeLunch, types.MealTypeDinner}

// EnumerateSlots expands an inclusive date range into ordered meal slots:
// days = ceil((end-start)/1d)+1, three meals per day, breakfast first.
func EnumerateSlots(start, end time.Time) ([]Slot, error) {
	if end.Before(start) {
		return nil, validationErr("plan end date %s precedes start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	days := int(math.Ceil(end.Sub(start).Hours()/24)) + 1
	out := make([]Slot, 0, days*len(mealTypes))
	for day := 1; day <= days; day++ {
		for _, mt := range mealTypes {
			out = append(out, Slot{MealType: mt, DayIndex: day})
		}
	}
	return out, nil
}
