package app

import (
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/services"
	"github.com/feastline/feastline-backend/internal/sse"
	"github.com/feastline/feastline-backend/internal/workflow"
)

type Services struct {
	Plan     services.PlanService
	Workflow services.WorkflowService
	Registry *services.RunRegistry
}

func wireServices(log *logger.Logger, cfg Config, reposet Repos, clientset Clients, hub *sse.Hub) Services {
	log.Info("Wiring services...")

	registry := services.NewRunRegistry()
	observers := workflow.MultiObserver{
		workflow.LogObserver{Log: log},
		workflow.SSEObserver{Hub: hub},
		registry,
	}
	if clientset.ProgressBus != nil {
		observers = append(observers, workflow.BusObserver{Bus: clientset.ProgressBus, Log: log})
	}

	engine := workflow.NewEngine(workflow.EngineDeps{
		Log:        log,
		Gateway:    clientset.Gateway,
		Catalog:    clientset.Catalog,
		Plans:      reposet.Plan,
		Attendees:  reposet.Attendee,
		Decisions:  reposet.Decision,
		Selections: reposet.SelectedRecipe,
		Shopping:   reposet.ShoppingItem,
		Budgets:    reposet.BudgetAnalysis,
		Pacer:      workflow.NewPacer(cfg.PacingInterval),
		Observer:   observers,
	})

	return Services{
		Plan:     services.NewPlanService(log, reposet.Plan, reposet.Attendee),
		Workflow: services.NewWorkflowService(log, engine, registry),
		Registry: registry,
	}
}
