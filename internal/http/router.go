package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/feastline/feastline-backend/internal/http/handlers"
	httpMW "github.com/feastline/feastline-backend/internal/http/middleware"
	"github.com/feastline/feastline-backend/internal/platform/envutil"
	"github.com/feastline/feastline-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	PlanHandler     *httpH.PlanHandler
	WorkflowHandler *httpH.WorkflowHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())
	if envutil.Bool("OTEL_ENABLED", false) {
		r.Use(otelgin.Middleware(envutil.Str("OTEL_SERVICE_NAME", "feastline-backend")))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Plans
		if cfg.PlanHandler != nil {
			api.POST("/plans", cfg.PlanHandler.CreatePlan)
			api.GET("/plans/:id", cfg.PlanHandler.GetPlan)
			api.DELETE("/plans/:id", cfg.PlanHandler.DeletePlan)
			api.POST("/plans/:id/attendees", cfg.PlanHandler.AddAttendees)
			api.PATCH("/plans/:id/status", cfg.PlanHandler.UpdateStatus)
		}

		// Workflow
		if cfg.WorkflowHandler != nil {
			api.POST("/plans/:id/workflow", cfg.WorkflowHandler.StartWorkflow)
			api.POST("/plans/:id/workflow/dietary", cfg.WorkflowHandler.RunDietary)
			api.POST("/plans/:id/workflow/selection", cfg.WorkflowHandler.RunSelection)
			api.POST("/plans/:id/workflow/consolidation", cfg.WorkflowHandler.RunConsolidation)
			api.POST("/plans/:id/workflow/budget", cfg.WorkflowHandler.RunBudget)
			api.GET("/plans/:id/workflow/progress", cfg.WorkflowHandler.GetProgress)
			api.GET("/plans/:id/workflow/stream", cfg.WorkflowHandler.StreamProgress)
		}
	}

	return r
}
