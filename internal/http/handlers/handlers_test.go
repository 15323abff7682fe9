package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/services"
	"github.com/feastline/feastline-backend/internal/sse"
	"github.com/feastline/feastline-backend/internal/types"
	"github.com/feastline/feastline-backend/internal/workflow"
	"github.com/feastline/feastline-backend/internal/workflow/calc"
)

type fakePlanService struct {
	plan *types.MealPlan
	err  error
}

func (f *fakePlanService) Create(ctx context.Context, input services.CreatePlanInput) (*types.MealPlan, error) {
	return f.plan, f.err
}

func (f *fakePlanService) Get(ctx context.Context, id uuid.UUID) (*types.MealPlan, error) {
	return f.plan, f.err
}

func (f *fakePlanService) Delete(ctx context.Context, id uuid.UUID) error { return f.err }

func (f *fakePlanService) AddAttendees(ctx context.Context, planID uuid.UUID, inputs []services.AttendeeInput) ([]*types.Attendee, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*types.Attendee{{PlanID: planID, Name: "Ada"}}, nil
}

func (f *fakePlanService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*types.MealPlan, error) {
	return f.plan, f.err
}

type fakeWorkflowService struct {
	result *workflow.RunResult
	err    error
}

func (f *fakeWorkflowService) Run(ctx context.Context, planID uuid.UUID) (*workflow.RunResult, error) {
	return f.result, f.err
}

func (f *fakeWorkflowService) RunDietary(ctx context.Context, planID uuid.UUID) (*workflow.DietaryResult, error) {
	return &workflow.DietaryResult{OverallComplexity: workflow.ComplexitySimple, ConfidenceScore: 1}, f.err
}

func (f *fakeWorkflowService) RunSelection(ctx context.Context, planID uuid.UUID) ([]*types.SelectedRecipe, error) {
	return nil, f.err
}

func (f *fakeWorkflowService) RunConsolidation(ctx context.Context, planID uuid.UUID) ([]calc.Consolidated, error) {
	return nil, f.err
}

func (f *fakeWorkflowService) RunBudget(ctx context.Context, planID uuid.UUID) (*types.BudgetAnalysis, error) {
	return nil, f.err
}

func (f *fakeWorkflowService) Progress(planID uuid.UUID) (*services.RunProgress, bool) {
	return nil, false
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func planRouter(t *testing.T, svc services.PlanService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewPlanHandler(testLogger(t), svc)
	r := gin.New()
	r.POST("/api/plans", h.CreatePlan)
	r.GET("/api/plans/:id", h.GetPlan)
	r.DELETE("/api/plans/:id", h.DeletePlan)
	r.POST("/api/plans/:id/attendees", h.AddAttendees)
	r.PATCH("/api/plans/:id/status", h.UpdateStatus)
	return r
}

func workflowRouter(t *testing.T, svc services.WorkflowService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewWorkflowHandler(testLogger(t), svc, sse.NewHub(testLogger(t)))
	r := gin.New()
	r.POST("/api/plans/:id/workflow", h.StartWorkflow)
	r.GET("/api/plans/:id/workflow/progress", h.GetProgress)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreatePlan(t *testing.T) {
	plan := &types.MealPlan{ID: uuid.New(), Name: "Cabin Weekend", Status: types.PlanStatusPlanning}
	r := planRouter(t, &fakePlanService{plan: plan})

	w := doJSON(t, r, http.MethodPost, "/api/plans", services.CreatePlanInput{
		Name:          "Cabin Weekend",
		AttendeeCount: 4,
		StartDate:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Plan types.MealPlan `json:"plan"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Plan.Name != "Cabin Weekend" {
		t.Errorf("plan: got %+v", resp.Plan)
	}
}

func TestCreatePlanRejectsMalformedBody(t *testing.T) {
	r := planRouter(t, &fakePlanService{})
	req := httptest.NewRequest(http.MethodPost, "/api/plans", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestCreatePlanValidationError(t *testing.T) {
	r := planRouter(t, &fakePlanService{err: fmt.Errorf("%w: attendee_count must be at least 1", workflow.ErrValidation)})
	w := doJSON(t, r, http.MethodPost, "/api/plans", services.CreatePlanInput{Name: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestGetPlanErrors(t *testing.T) {
	cases := []struct {
		name string
		id   string
		err  error
		want int
	}{
		{"bad uuid", "not-a-uuid", nil, http.StatusBadRequest},
		{"not found", uuid.NewString(), fmt.Errorf("%w: plan not found", workflow.ErrValidation), http.StatusNotFound},
		{"internal", uuid.NewString(), fmt.Errorf("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := planRouter(t, &fakePlanService{err: tc.err})
			w := doJSON(t, r, http.MethodGet, "/api/plans/"+tc.id, nil)
			if w.Code != tc.want {
				t.Errorf("status: got %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestStartWorkflow(t *testing.T) {
	planID := uuid.New()
	r := workflowRouter(t, &fakeWorkflowService{
		result: &workflow.RunResult{PlanID: planID, Status: types.PlanStatusCompleted},
	})
	w := doJSON(t, r, http.MethodPost, "/api/plans/"+planID.String()+"/workflow", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Run workflow.RunResult `json:"run"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Run.Status != types.PlanStatusCompleted {
		t.Errorf("run: got %+v", resp.Run)
	}
}

func TestStartWorkflowFailedRunKeepsLedger(t *testing.T) {
	planID := uuid.New()
	r := workflowRouter(t, &fakeWorkflowService{
		result: &workflow.RunResult{
			PlanID: planID,
			Status: types.PlanStatusFailed,
			Steps:  []workflow.StepRecord{{Stage: workflow.StageDietary, Status: workflow.StepFailed}},
		},
		err: fmt.Errorf("%w: selected recipe 9 is not a candidate", workflow.ErrConsistency),
	})
	w := doJSON(t, r, http.MethodPost, "/api/plans/"+planID.String()+"/workflow", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", w.Code)
	}
	var resp struct {
		Run   workflow.RunResult `json:"run"`
		Error string             `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Run.Steps) != 1 || resp.Error == "" {
		t.Errorf("expected ledger and error in body, got %s", w.Body.String())
	}
}

func TestGetProgressWithoutRun(t *testing.T) {
	r := workflowRouter(t, &fakeWorkflowService{})
	w := doJSON(t, r, http.MethodGet, "/api/plans/"+uuid.NewString()+"/workflow/progress", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["progress"] != nil {
		t.Errorf("expected null progress, got %v", resp["progress"])
	}
}
