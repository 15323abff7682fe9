package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
)

type AttendeeRepo interface {
	CreateBatch(dbc dbctx.Context, attendees []*types.Attendee) ([]*types.Attendee, error)
	GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.Attendee, error)
}

type attendeeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttendeeRepo(db *gorm.DB, baseLog *logger.Logger) AttendeeRepo {
	return &attendeeRepo{db: db, log: baseLog.With("repo", "AttendeeRepo")}
}

func (r *attendeeRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *attendeeRepo) CreateBatch(dbc dbctx.Context, attendees []*types.Attendee) ([]*types.Attendee, error) {
	if len(attendees) == 0 {
		return []*types.Attendee{}, nil
	}
	for _, a := range attendees {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if a.Severity == "" {
			a.Severity = types.SeverityMild
		}
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(&attendees).Error; err != nil {
		return nil, err
	}
	return attendees, nil
}

func (r *attendeeRepo) GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.Attendee, error) {
	var out []*types.Attendee
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
