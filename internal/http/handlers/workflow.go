package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feastline/feastline-backend/internal/http/response"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/services"
	"github.com/feastline/feastline-backend/internal/sse"
)

type WorkflowHandler struct {
	log             *logger.Logger
	workflowService services.WorkflowService
	hub             *sse.Hub
}

func NewWorkflowHandler(log *logger.Logger, workflowService services.WorkflowService, hub *sse.Hub) *WorkflowHandler {
	return &WorkflowHandler{
		log:             log.With("handler", "WorkflowHandler"),
		workflowService: workflowService,
		hub:             hub,
	}
}

// StartWorkflow runs the full four-stage workflow. Concurrent starts for
// the same plan share one run.
func (h *WorkflowHandler) StartWorkflow(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	result, err := h.workflowService.Run(c.Request.Context(), id)
	if err != nil {
		h.log.Error("StartWorkflow failed", "error", err, "plan_id", id)
		// A failed run still carries its step ledger.
		if result != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"run": result, "error": err.Error()})
			return
		}
		respondDomainError(c, "workflow_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"run": result})
}

func (h *WorkflowHandler) RunDietary(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	result, err := h.workflowService.RunDietary(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, "dietary_stage_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"analysis": result})
}

func (h *WorkflowHandler) RunSelection(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	selections, err := h.workflowService.RunSelection(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, "selection_stage_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"selections": selections})
}

func (h *WorkflowHandler) RunConsolidation(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	items, err := h.workflowService.RunConsolidation(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, "consolidation_stage_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"items": items})
}

func (h *WorkflowHandler) RunBudget(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	analysis, err := h.workflowService.RunBudget(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, "budget_stage_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"analysis": analysis})
}

func (h *WorkflowHandler) GetProgress(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	progress, found := h.workflowService.Progress(id)
	if !found {
		response.RespondOK(c, gin.H{"progress": nil})
		return
	}
	response.RespondOK(c, gin.H{"progress": progress})
}

// StreamProgress subscribes the caller to the plan's SSE channel and blocks
// until the client disconnects.
func (h *WorkflowHandler) StreamProgress(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	client := h.hub.NewClient()
	h.hub.Subscribe(client, id.String())
	defer h.hub.CloseClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
