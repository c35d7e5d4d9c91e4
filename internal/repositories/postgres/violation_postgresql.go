package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"gorm.io/gorm"
)

type ViolationPostgreSQL struct {
	db *gorm.DB
}

func NewViolationPostgreSQL(db *gorm.DB) repositories.ViolationRepository {
	return &ViolationPostgreSQL{db: db}
}

func (v ViolationPostgreSQL) Create(ctx context.Context, violation *models.ProctoringViolation) error {
	return v.db.WithContext(ctx).Create(violation).Error
}

func (v ViolationPostgreSQL) GetByID(ctx context.Context, id uint) (*models.ProctoringViolation, error) {
	var violation models.ProctoringViolation
	if err := v.db.WithContext(ctx).First(&violation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &violation, nil
}

func (v ViolationPostgreSQL) GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringViolation, error) {
	var violations []*models.ProctoringViolation
	if err := v.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("detected_at asc, id asc").
		Find(&violations).Error; err != nil {
		return nil, err
	}
	return violations, nil
}

// Review is the only mutation violations accept.
func (v ViolationPostgreSQL) Review(ctx context.Context, id uint, reviewerID string, notes *string, at time.Time) error {
	result := v.db.WithContext(ctx).
		Model(&models.ProctoringViolation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reviewed":     true,
			"review_notes": notes,
			"reviewed_by":  reviewerID,
			"reviewed_at":  at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
