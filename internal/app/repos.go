package app

import (
	"gorm.io/gorm"

	"github.com/feastline/feastline-backend/internal/data/repos"
	"github.com/feastline/feastline-backend/internal/platform/logger"
)

type Repos struct {
	Plan           repos.PlanRepo
	Attendee       repos.AttendeeRepo
	Decision       repos.DecisionRepo
	SelectedRecipe repos.SelectedRecipeRepo
	ShoppingItem   repos.ShoppingItemRepo
	BudgetAnalysis repos.BudgetAnalysisRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Plan:           repos.NewPlanRepo(db, log),
		Attendee:       repos.NewAttendeeRepo(db, log),
		Decision:       repos.NewDecisionRepo(db, log),
		SelectedRecipe: repos.NewSelectedRecipeRepo(db, log),
		ShoppingItem:   repos.NewShoppingItemRepo(db, log),
		BudgetAnalysis: repos.NewBudgetAnalysisRepo(db, log),
	}
}
