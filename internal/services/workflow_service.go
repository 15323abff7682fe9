package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
	"github.com/feastline/feastline-backend/internal/workflow"
	"github.com/feastline/feastline-backend/internal/workflow/calc"
)

// RunProgress is the live view of a plan's most recent workflow run.
type RunProgress struct {
	PlanID     uuid.UUID             `json:"plan_id"`
	Status     string                `json:"status"`
	Steps      []workflow.StepRecord `json:"steps"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
}

// RunRegistry tracks in-flight and recently finished runs. It doubles as a
// step observer so the engine feeds it directly.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*RunProgress
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[uuid.UUID]*RunProgress)}
}

func (r *RunRegistry) OnStep(planID uuid.UUID, rec workflow.StepRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[planID]
	if !ok || run.FinishedAt != nil {
		run = &RunProgress{PlanID: planID, Status: types.PlanStatusProcessing, StartedAt: time.Now()}
		r.runs[planID] = run
	}
	// A terminal record supersedes the in_progress entry for its stage.
	if n := len(run.Steps); n > 0 &&
		run.Steps[n-1].Stage == rec.Stage &&
		run.Steps[n-1].Status == workflow.StepInProgress &&
		rec.Status != workflow.StepInProgress {
		run.Steps[n-1] = rec
		return
	}
	run.Steps = append(run.Steps, rec)
}

func (r *RunRegistry) OnRunFinished(planID uuid.UUID, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[planID]
	if !ok {
		return
	}
	now := time.Now()
	run.Status = status
	run.FinishedAt = &now
}

// Snapshot returns a copy of the plan's latest run, if any.
func (r *RunRegistry) Snapshot(planID uuid.UUID) (*RunProgress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[planID]
	if !ok {
		return nil, false
	}
	cp := *run
	cp.Steps = append([]workflow.StepRecord(nil), run.Steps...)
	return &cp, true
}

type WorkflowService interface {
	// Run executes the full workflow. Concurrent calls for the same plan
	// coalesce onto one run and share its result.
	Run(ctx context.Context, planID uuid.UUID) (*workflow.RunResult, error)

	RunDietary(ctx context.Context, planID uuid.UUID) (*workflow.DietaryResult, error)
	RunSelection(ctx context.Context, planID uuid.UUID) ([]*types.SelectedRecipe, error)
	RunConsolidation(ctx context.Context, planID uuid.UUID) ([]calc.Consolidated, error)
	RunBudget(ctx context.Context, planID uuid.UUID) (*types.BudgetAnalysis, error)

	Progress(planID uuid.UUID) (*RunProgress, bool)
}

type workflowService struct {
	log      *logger.Logger
	engine   *workflow.Engine
	registry *RunRegistry
	group    singleflight.Group
}

func NewWorkflowService(log *logger.Logger, engine *workflow.Engine, registry *RunRegistry) WorkflowService {
	return &workflowService{
		log:      log.With("service", "WorkflowService"),
		engine:   engine,
		registry: registry,
	}
}

func (s *workflowService) Run(ctx context.Context, planID uuid.UUID) (*workflow.RunResult, error) {
	// The run outlives the caller that started it: a second subscriber's
	// disconnect must not cancel a shared run.
	runCtx := context.WithoutCancel(ctx)
	v, err, shared := s.group.Do(planID.String(), func() (any, error) {
		return s.engine.Run(runCtx, planID)
	})
	if shared {
		s.log.Debug("Coalesced concurrent workflow request", "plan_id", planID.String())
	}
	result, _ := v.(*workflow.RunResult)
	return result, err
}

func (s *workflowService) RunDietary(ctx context.Context, planID uuid.UUID) (*workflow.DietaryResult, error) {
	return s.engine.RunDietaryStage(ctx, planID)
}

func (s *workflowService) RunSelection(ctx context.Context, planID uuid.UUID) ([]*types.SelectedRecipe, error) {
	return s.engine.RunSelectionStage(ctx, planID)
}

func (s *workflowService) RunConsolidation(ctx context.Context, planID uuid.UUID) ([]calc.Consolidated, error) {
	return s.engine.RunConsolidationStage(ctx, planID)
}

func (s *workflowService) RunBudget(ctx context.Context, planID uuid.UUID) (*types.BudgetAnalysis, error) {
	return s.engine.RunBudgetStage(ctx, planID)
}

func (s *workflowService) Progress(planID uuid.UUID) (*RunProgress, bool) {
	return s.registry.Snapshot(planID)
}
