package postgres

import (
	"context"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"gorm.io/gorm"
)

type EventPostgreSQL struct {
	db *gorm.DB
}

func NewEventPostgreSQL(db *gorm.DB) repositories.EventRepository {
	return &EventPostgreSQL{db: db}
}

func (e EventPostgreSQL) Create(ctx context.Context, event *models.ProctoringEvent) error {
	return e.db.WithContext(ctx).Create(event).Error
}

// GetBySession orders on detected_at, not insertion order, so the
// timeline survives out-of-order write completion.
func (e EventPostgreSQL) GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringEvent, error) {
	var events []*models.ProctoringEvent
	if err := e.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("detected_at asc, id asc").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (e EventPostgreSQL) CountBySession(ctx context.Context, sessionID uint) (int64, error) {
	var count int64
	if err := e.db.WithContext(ctx).
		Model(&models.ProctoringEvent{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
