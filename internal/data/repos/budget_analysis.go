package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
)

type BudgetAnalysisRepo interface {
	Create(dbc dbctx.Context, analysis *types.BudgetAnalysis) (*types.BudgetAnalysis, error)
	GetLatestByPlanID(dbc dbctx.Context, planID uuid.UUID) (*types.BudgetAnalysis, error)
}

type budgetAnalysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBudgetAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) BudgetAnalysisRepo {
	return &budgetAnalysisRepo{db: db, log: baseLog.With("repo", "BudgetAnalysisRepo")}
}

func (r *budgetAnalysisRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *budgetAnalysisRepo) Create(dbc dbctx.Context, analysis *types.BudgetAnalysis) (*types.BudgetAnalysis, error) {
	if analysis.ID == uuid.Nil {
		analysis.ID = uuid.New()
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(analysis).Error; err != nil {
		return nil, err
	}
	return analysis, nil
}

func (r *budgetAnalysisRepo) GetLatestByPlanID(dbc dbctx.Context, planID uuid.UUID) (*types.BudgetAnalysis, error) {
	if planID == uuid.Nil {
		return nil, nil
	}
	var row types.BudgetAnalysis
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("plan_id = ?", planID).
		Order("created_at DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}
