package postgres

import (
	"context"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"gorm.io/gorm"
)

type InterventionPostgreSQL struct {
	db *gorm.DB
}

func NewInterventionPostgreSQL(db *gorm.DB) repositories.InterventionRepository {
	return &InterventionPostgreSQL{db: db}
}

func (i InterventionPostgreSQL) Create(ctx context.Context, intervention *models.ProctoringIntervention) error {
	return i.db.WithContext(ctx).Create(intervention).Error
}

func (i InterventionPostgreSQL) GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringIntervention, error) {
	var interventions []*models.ProctoringIntervention
	if err := i.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sent_at asc, id asc").
		Find(&interventions).Error; err != nil {
		return nil, err
	}
	return interventions, nil
}
