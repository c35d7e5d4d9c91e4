package postgres

import (
	"context"
	"errors"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"gorm.io/gorm"
)

type AlertPostgreSQL struct {
	db *gorm.DB
}

func NewAlertPostgreSQL(db *gorm.DB) repositories.AlertRepository {
	return &AlertPostgreSQL{db: db}
}

func (a AlertPostgreSQL) Create(ctx context.Context, alert *models.ProctoringAlert) error {
	return a.db.WithContext(ctx).Create(alert).Error
}

func (a AlertPostgreSQL) GetByID(ctx context.Context, id uint) (*models.ProctoringAlert, error) {
	var alert models.ProctoringAlert
	if err := a.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (a AlertPostgreSQL) GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringAlert, error) {
	var alerts []*models.ProctoringAlert
	if err := a.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc, id asc").
		Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (a AlertPostgreSQL) GetPendingByExam(ctx context.Context, examID uint) ([]*models.ProctoringAlert, error) {
	var alerts []*models.ProctoringAlert
	if err := a.db.WithContext(ctx).
		Joins("JOIN proctoring_sessions ON proctoring_sessions.id = proctoring_alerts.session_id").
		Where("proctoring_sessions.exam_id = ? AND proctoring_alerts.status = ?", examID, models.AlertPending).
		Order("proctoring_alerts.created_at desc").
		Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (a AlertPostgreSQL) GetOpenBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringAlert, error) {
	var alerts []*models.ProctoringAlert
	if err := a.db.WithContext(ctx).
		Where("session_id = ? AND status <> ?", sessionID, models.AlertResolved).
		Order("created_at desc").
		Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (a AlertPostgreSQL) Update(ctx context.Context, alert *models.ProctoringAlert) error {
	return a.db.WithContext(ctx).Save(alert).Error
}
