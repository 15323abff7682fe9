package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/feastline/feastline-backend/internal/data/repos"
	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
	"github.com/feastline/feastline-backend/internal/workflow"
)

// CreatePlanInput carries everything needed to open a plan, optionally with
// its initial attendee roster.
type CreatePlanInput struct {
	Name          string          `json:"name"`
	AttendeeCount int             `json:"attendee_count"`
	Budget        *float64        `json:"budget,omitempty"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	Attendees     []AttendeeInput `json:"attendees,omitempty"`
}

type AttendeeInput struct {
	Name                string   `json:"name"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	Preferences         []string `json:"preferences,omitempty"`
	Notes               string   `json:"notes,omitempty"`
	Severity            string   `json:"severity,omitempty"`
}

type PlanService interface {
	Create(ctx context.Context, input CreatePlanInput) (*types.MealPlan, error)
	Get(ctx context.Context, id uuid.UUID) (*types.MealPlan, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddAttendees(ctx context.Context, planID uuid.UUID, inputs []AttendeeInput) ([]*types.Attendee, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*types.MealPlan, error)
}

type planService struct {
	log       *logger.Logger
	plans     repos.PlanRepo
	attendees repos.AttendeeRepo
}

func NewPlanService(log *logger.Logger, plans repos.PlanRepo, attendees repos.AttendeeRepo) PlanService {
	return &planService{
		log:       log.With("service", "PlanService"),
		plans:     plans,
		attendees: attendees,
	}
}

func validateCreate(input CreatePlanInput) error {
	if input.Name == "" {
		return fmt.Errorf("%w: plan name is required", workflow.ErrValidation)
	}
	if input.AttendeeCount < 1 {
		return fmt.Errorf("%w: attendee_count must be at least 1", workflow.ErrValidation)
	}
	if input.Budget != nil && *input.Budget < 0 {
		return fmt.Errorf("%w: budget cannot be negative", workflow.ErrValidation)
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", workflow.ErrValidation)
	}
	if input.EndDate.Before(input.StartDate) {
		return fmt.Errorf("%w: end_date precedes start_date", workflow.ErrValidation)
	}
	return nil
}

func buildAttendee(planID uuid.UUID, input AttendeeInput) (*types.Attendee, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: attendee name is required", workflow.ErrValidation)
	}
	severity := input.Severity
	if severity == "" {
		severity = types.SeverityMild
	}
	if !types.ValidSeverity(severity) {
		return nil, fmt.Errorf("%w: unknown severity %q", workflow.ErrValidation, input.Severity)
	}
	restrictions, err := json.Marshal(input.DietaryRestrictions)
	if err != nil {
		return nil, err
	}
	preferences, err := json.Marshal(input.Preferences)
	if err != nil {
		return nil, err
	}
	return &types.Attendee{
		PlanID:              planID,
		Name:                input.Name,
		DietaryRestrictions: datatypes.JSON(restrictions),
		Preferences:         datatypes.JSON(preferences),
		Notes:               input.Notes,
		Severity:            severity,
	}, nil
}

func (s *planService) Create(ctx context.Context, input CreatePlanInput) (*types.MealPlan, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	dbc := dbctx.New(ctx)
	plan, err := s.plans.Create(dbc, &types.MealPlan{
		Name:          input.Name,
		AttendeeCount: input.AttendeeCount,
		Budget:        input.Budget,
		StartDate:     input.StartDate,
		EndDate:       input.EndDate,
		Status:        types.PlanStatusPlanning,
	})
	if err != nil {
		return nil, err
	}
	if len(input.Attendees) > 0 {
		if _, err := s.addAttendees(dbc, plan.ID, input.Attendees); err != nil {
			return nil, err
		}
	}
	s.log.Info("Plan created", "plan_id", plan.ID.String(), "name", plan.Name)
	return s.plans.GetWithChildren(dbc, plan.ID)
}

func (s *planService) Get(ctx context.Context, id uuid.UUID) (*types.MealPlan, error) {
	plan, err := s.plans.GetWithChildren(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: plan %s not found", workflow.ErrValidation, id)
	}
	return plan, nil
}

func (s *planService) Delete(ctx context.Context, id uuid.UUID) error {
	dbc := dbctx.New(ctx)
	plan, err := s.plans.GetByID(dbc, id)
	if err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("%w: plan %s not found", workflow.ErrValidation, id)
	}
	if err := s.plans.Delete(dbc, id); err != nil {
		return err
	}
	s.log.Info("Plan deleted", "plan_id", id.String())
	return nil
}

func (s *planService) addAttendees(dbc dbctx.Context, planID uuid.UUID, inputs []AttendeeInput) ([]*types.Attendee, error) {
	rows := make([]*types.Attendee, 0, len(inputs))
	for _, in := range inputs {
		row, err := buildAttendee(planID, in)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return s.attendees.CreateBatch(dbc, rows)
}

func (s *planService) AddAttendees(ctx context.Context, planID uuid.UUID, inputs []AttendeeInput) ([]*types.Attendee, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one attendee is required", workflow.ErrValidation)
	}
	dbc := dbctx.New(ctx)
	plan, err := s.plans.GetByID(dbc, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: plan %s not found", workflow.ErrValidation, planID)
	}
	// The roster feeds the dietary analysis; once a run has started the
	// plan's inputs are frozen.
	if plan.Status != types.PlanStatusPlanning {
		return nil, fmt.Errorf("%w: attendees can only be added while the plan is in planning", workflow.ErrValidation)
	}
	return s.addAttendees(dbc, planID, inputs)
}

func (s *planService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*types.MealPlan, error) {
	if !types.ValidPlanStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", workflow.ErrValidation, status)
	}
	dbc := dbctx.New(ctx)
	plan, err := s.plans.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: plan %s not found", workflow.ErrValidation, id)
	}
	// The workflow owns the processing/completed/failed transitions; the
	// API can only park a plan back in planning.
	if status != types.PlanStatusPlanning {
		return nil, fmt.Errorf("%w: status %q is set by the workflow, not the API", workflow.ErrValidation, status)
	}
	if plan.Status == types.PlanStatusProcessing {
		return nil, fmt.Errorf("%w: cannot reset a plan while its workflow is running", workflow.ErrValidation)
	}
	return s.plans.UpdateStatus(dbc, id, status)
}
