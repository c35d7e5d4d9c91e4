package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

// Repository bundles the per-entity stores and the transaction boundary.
// WithTransaction runs fn against a Repository bound to one transaction;
// fn returning an error rolls everything back.
type Repository interface {
	Session() SessionRepository
	Event() EventRepository
	Violation() ViolationRepository
	Alert() AlertRepository
	Intervention() InterventionRepository

	WithTransaction(ctx context.Context, fn func(Repository) error) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.ProctoringSession) error
	GetByID(ctx context.Context, id uint) (*models.ProctoringSession, error)
	GetByIDWithDetails(ctx context.Context, id uint) (*models.ProctoringSession, error) // Include settings
	Update(ctx context.Context, session *models.ProctoringSession) error

	// Live-monitoring reads
	GetActiveByExam(ctx context.Context, examID uint) ([]*models.ProctoringSession, error) // active or paused
	GetByStudentAndExam(ctx context.Context, studentID string, examID uint) ([]*models.ProctoringSession, error)
	List(ctx context.Context, filters SessionFilters) ([]*models.ProctoringSession, int64, error)

	TouchActivity(ctx context.Context, id uint, at time.Time) error
}

// EventRepository is append-only; GetBySession orders by detected_at on
// read so the audit timeline holds even when writes complete out of
// order.
type EventRepository interface {
	Create(ctx context.Context, event *models.ProctoringEvent) error
	GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringEvent, error)
	CountBySession(ctx context.Context, sessionID uint) (int64, error)
}

type ViolationRepository interface {
	Create(ctx context.Context, violation *models.ProctoringViolation) error
	GetByID(ctx context.Context, id uint) (*models.ProctoringViolation, error)
	GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringViolation, error)
	Review(ctx context.Context, id uint, reviewerID string, notes *string, at time.Time) error
}

type AlertRepository interface {
	Create(ctx context.Context, alert *models.ProctoringAlert) error
	GetByID(ctx context.Context, id uint) (*models.ProctoringAlert, error)
	GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringAlert, error)
	GetPendingByExam(ctx context.Context, examID uint) ([]*models.ProctoringAlert, error)    // newest first
	GetOpenBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringAlert, error) // status != resolved
	Update(ctx context.Context, alert *models.ProctoringAlert) error
}

type InterventionRepository interface {
	Create(ctx context.Context, intervention *models.ProctoringIntervention) error
	GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctoringIntervention, error)
}

// ===== SHARED FILTER STRUCTS =====

type SessionFilters struct {
	ExamID    *uint                 `json:"exam_id"`
	StudentID *string               `json:"student_id"`
	Status    *models.SessionStatus `json:"status"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "created_at", "started_at", "last_activity_at"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

// ===== SHARED STATISTICS STRUCTS =====

// SessionStats is the per-session rollup the report generator reduces a
// history into. Duration is measured to ended_at, or to the report's
// generation time while the session is still open.
type SessionStats struct {
	TotalEvents          int                                `json:"total_events"`
	FlaggedEvents        int                                `json:"flagged_events"`
	TotalViolations      int                                `json:"total_violations"`
	ViolationsBySeverity map[models.Severity]int            `json:"violations_by_severity"`
	ViolationsByType     map[models.ProctoringEventType]int `json:"violations_by_type"`
	AverageConfidence    float64                            `json:"average_confidence"`
	Duration             time.Duration                      `json:"duration"`
}

type ExamMonitoringStats struct {
	ActiveSessions  int `json:"active_sessions"`
	PausedSessions  int `json:"paused_sessions"`
	PendingAlerts   int `json:"pending_alerts"`
	TotalViolations int `json:"total_violations"`
}
