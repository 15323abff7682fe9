package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
)

type ShoppingItemRepo interface {
	// ReplaceForPlan swaps the plan's entire shopping list atomically; the
	// list is a pure function of the current selections, not cumulative.
	ReplaceForPlan(dbc dbctx.Context, planID uuid.UUID, items []*types.ShoppingItem) ([]*types.ShoppingItem, error)
	GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.ShoppingItem, error)
}

type shoppingItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewShoppingItemRepo(db *gorm.DB, baseLog *logger.Logger) ShoppingItemRepo {
	return &shoppingItemRepo{db: db, log: baseLog.With("repo", "ShoppingItemRepo")}
}

func (r *shoppingItemRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *shoppingItemRepo) ReplaceForPlan(dbc dbctx.Context, planID uuid.UUID, items []*types.ShoppingItem) ([]*types.ShoppingItem, error) {
	if planID == uuid.Nil {
		return nil, nil
	}
	err := r.handle(dbc).WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("plan_id = ?", planID).Delete(&types.ShoppingItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		for _, it := range items {
			if it.ID == uuid.Nil {
				it.ID = uuid.New()
			}
			it.PlanID = planID
			if it.Priority == 0 {
				it.Priority = 3
			}
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *shoppingItemRepo) GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.ShoppingItem, error) {
	var out []*types.ShoppingItem
	if planID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("plan_id = ?", planID).
		Order("category ASC, priority DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
