package app

import (
	"github.com/gin-gonic/gin"

	internalhttp "github.com/feastline/feastline-backend/internal/http"
	"github.com/feastline/feastline-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, handlerset Handlers) *gin.Engine {
	log.Info("Wiring router...")
	return internalhttp.NewRouter(internalhttp.RouterConfig{
		Log:             log,
		PlanHandler:     handlerset.Plan,
		WorkflowHandler: handlerset.Workflow,
		HealthHandler:   handlerset.Health,
	})
}
