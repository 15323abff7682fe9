package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
)

// Ordering applied when loading a plan's children: decisions oldest first,
// selected recipes in slot order, shopping items grouped by store section
// with the most important first.
const slotOrder = "day_index ASC, CASE meal_type WHEN 'breakfast' THEN 0 WHEN 'lunch' THEN 1 ELSE 2 END"

type PlanRepo interface {
	Create(dbc dbctx.Context, plan *types.MealPlan) (*types.MealPlan, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MealPlan, error)
	GetWithChildren(dbc dbctx.Context, id uuid.UUID) (*types.MealPlan, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) (*types.MealPlan, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type planRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo {
	return &planRepo{db: db, log: baseLog.With("repo", "PlanRepo")}
}

func (r *planRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *planRepo) Create(dbc dbctx.Context, plan *types.MealPlan) (*types.MealPlan, error) {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if plan.Status == "" {
		plan.Status = types.PlanStatusPlanning
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(plan).Error; err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MealPlan, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var plan types.MealPlan
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == uuid.Nil {
		return nil, nil
	}
	return &plan, nil
}

func (r *planRepo) GetWithChildren(dbc dbctx.Context, id uuid.UUID) (*types.MealPlan, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var plan types.MealPlan
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Preload("Attendees", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at ASC")
		}).
		Preload("Decisions", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at ASC")
		}).
		Preload("SelectedRecipes", func(tx *gorm.DB) *gorm.DB {
			return tx.Order(slotOrder)
		}).
		Preload("ShoppingItems", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("category ASC, priority DESC")
		}).
		Preload("BudgetAnalyses", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at DESC")
		}).
		Where("id = ?", id).
		Limit(1).
		Find(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == uuid.Nil {
		return nil, nil
	}
	return &plan, nil
}

func (r *planRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) (*types.MealPlan, error) {
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.MealPlan{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error; err != nil {
		return nil, err
	}
	return r.GetByID(dbc, id)
}

func (r *planRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.MealPlan{}).Error
}
