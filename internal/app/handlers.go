package app

import (
	httpH "github.com/feastline/feastline-backend/internal/http/handlers"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/sse"
)

type Handlers struct {
	Plan     *httpH.PlanHandler
	Workflow *httpH.WorkflowHandler
	Health   *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, serviceset Services, hub *sse.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Plan:     httpH.NewPlanHandler(log, serviceset.Plan),
		Workflow: httpH.NewWorkflowHandler(log, serviceset.Workflow, hub),
		Health:   httpH.NewHealthHandler(),
	}
}
