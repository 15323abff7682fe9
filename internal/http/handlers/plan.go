package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feastline/feastline-backend/internal/http/response"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/services"
)

type PlanHandler struct {
	log         *logger.Logger
	planService services.PlanService
}

func NewPlanHandler(log *logger.Logger, planService services.PlanService) *PlanHandler {
	return &PlanHandler{
		log:         log.With("handler", "PlanHandler"),
		planService: planService,
	}
}

func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var input services.CreatePlanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	plan, err := h.planService.Create(c.Request.Context(), input)
	if err != nil {
		h.log.Error("CreatePlan failed", "error", err)
		respondDomainError(c, "create_plan_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"plan": plan})
}

func (h *PlanHandler) GetPlan(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	plan, err := h.planService.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, "load_plan_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"plan": plan})
}

func (h *PlanHandler) DeletePlan(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	if err := h.planService.Delete(c.Request.Context(), id); err != nil {
		respondDomainError(c, "delete_plan_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}

func (h *PlanHandler) AddAttendees(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	var body struct {
		Attendees []services.AttendeeInput `json:"attendees"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	attendees, err := h.planService.AddAttendees(c.Request.Context(), id, body.Attendees)
	if err != nil {
		h.log.Error("AddAttendees failed", "error", err, "plan_id", id)
		respondDomainError(c, "add_attendees_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"attendees": attendees})
}

func (h *PlanHandler) UpdateStatus(c *gin.Context) {
	id, ok := planID(c)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	plan, err := h.planService.UpdateStatus(c.Request.Context(), id, body.Status)
	if err != nil {
		respondDomainError(c, "update_status_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"plan": plan})
}
