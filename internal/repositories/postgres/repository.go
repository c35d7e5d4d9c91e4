package postgres

import (
	"context"

	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"gorm.io/gorm"
)

type gormRepository struct {
	db            *gorm.DB
	sessions      repositories.SessionRepository
	events        repositories.EventRepository
	violations    repositories.ViolationRepository
	alerts        repositories.AlertRepository
	interventions repositories.InterventionRepository
}

func NewRepository(db *gorm.DB) repositories.Repository {
	return &gormRepository{
		db:            db,
		sessions:      NewSessionPostgreSQL(db),
		events:        NewEventPostgreSQL(db),
		violations:    NewViolationPostgreSQL(db),
		alerts:        NewAlertPostgreSQL(db),
		interventions: NewInterventionPostgreSQL(db),
	}
}

func (r *gormRepository) Session() repositories.SessionRepository           { return r.sessions }
func (r *gormRepository) Event() repositories.EventRepository               { return r.events }
func (r *gormRepository) Violation() repositories.ViolationRepository       { return r.violations }
func (r *gormRepository) Alert() repositories.AlertRepository               { return r.alerts }
func (r *gormRepository) Intervention() repositories.InterventionRepository { return r.interventions }

func (r *gormRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
