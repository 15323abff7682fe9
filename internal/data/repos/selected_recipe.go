package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
)

type SelectedRecipeRepo interface {
	Create(dbc dbctx.Context, recipe *types.SelectedRecipe) (*types.SelectedRecipe, error)
	GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.SelectedRecipe, error)
	DeleteByPlanID(dbc dbctx.Context, planID uuid.UUID) error
}

type selectedRecipeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSelectedRecipeRepo(db *gorm.DB, baseLog *logger.Logger) SelectedRecipeRepo {
	return &selectedRecipeRepo{db: db, log: baseLog.With("repo", "SelectedRecipeRepo")}
}

func (r *selectedRecipeRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *selectedRecipeRepo) Create(dbc dbctx.Context, recipe *types.SelectedRecipe) (*types.SelectedRecipe, error) {
	if recipe.ID == uuid.Nil {
		recipe.ID = uuid.New()
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(recipe).Error; err != nil {
		return nil, err
	}
	return recipe, nil
}

// GetByPlanID returns selections in slot order: day 1 breakfast, day 1
// lunch, day 1 dinner, day 2 breakfast, ...
func (r *selectedRecipeRepo) GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.SelectedRecipe, error) {
	var out []*types.SelectedRecipe
	if planID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("plan_id = ?", planID).
		Order(slotOrder).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *selectedRecipeRepo) DeleteByPlanID(dbc dbctx.Context, planID uuid.UUID) error {
	if planID == uuid.Nil {
		return nil
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Where("plan_id = ?", planID).
		Delete(&types.SelectedRecipe{}).Error
}
