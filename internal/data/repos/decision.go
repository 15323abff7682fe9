package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
)

// DecisionRepo is append-only: records are created and read, never updated.
type DecisionRepo interface {
	Create(dbc dbctx.Context, decision *types.AgentDecision) (*types.AgentDecision, error)
	GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.AgentDecision, error)
}

type decisionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDecisionRepo(db *gorm.DB, baseLog *logger.Logger) DecisionRepo {
	return &decisionRepo{db: db, log: baseLog.With("repo", "DecisionRepo")}
}

func (r *decisionRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *decisionRepo) Create(dbc dbctx.Context, decision *types.AgentDecision) (*types.AgentDecision, error) {
	if decision.ID == uuid.Nil {
		decision.ID = uuid.New()
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(decision).Error; err != nil {
		return nil, err
	}
	return decision, nil
}

func (r *decisionRepo) GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.AgentDecision, error) {
	var out []*types.AgentDecision
	if planID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("plan_id = ?", planID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
