package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feastline/feastline-backend/internal/http/response"
	"github.com/feastline/feastline-backend/internal/workflow"
)

func planID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_plan_id",
			fmt.Errorf("plan id must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

// respondDomainError maps the workflow error taxonomy onto HTTP statuses:
// validation problems are the caller's fault, consistency problems mean the
// upstream data cannot be trusted, everything else is ours.
func respondDomainError(c *gin.Context, code string, err error) {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		response.RespondError(c, status, code, err)
	case errors.Is(err, workflow.ErrConsistency):
		response.RespondError(c, http.StatusUnprocessableEntity, code, err)
	default:
		response.RespondError(c, http.StatusInternalServerError, code, err)
	}
}
