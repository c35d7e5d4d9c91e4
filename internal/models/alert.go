package models

import "time"

type AlertStatus string

const (
	AlertPending      AlertStatus = "pending"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

var alertStatusRank = map[AlertStatus]int{
	AlertPending:      1,
	AlertAcknowledged: 2,
	AlertResolved:     3,
}

// CanTransitionTo enforces the monotonic pending -> acknowledged ->
// resolved progression; regressions and repeats are rejected.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	return alertStatusRank[next] > alertStatusRank[s]
}

// ProctoringAlert is raised only for high/critical violations and demands
// teacher attention while the session is still running.
type ProctoringAlert struct {
	ID          uint  `json:"id" gorm:"primaryKey"`
	SessionID   uint  `json:"session_id" gorm:"not null;index"`
	ViolationID *uint `json:"violation_id" gorm:"index"`

	Type     ProctoringEventType `json:"type" gorm:"not null"`
	Severity Severity            `json:"severity" gorm:"not null;index" validate:"severity"`
	Message  string              `json:"message" gorm:"type:text"`

	Status          AlertStatus `json:"status" gorm:"default:pending;index" validate:"omitempty,alert_status"`
	AcknowledgedBy  *string     `json:"acknowledged_by" gorm:"size:255"`
	AcknowledgedAt  *time.Time  `json:"acknowledged_at"`
	ResolvedAt      *time.Time  `json:"resolved_at"`
	ResolutionNotes *string     `json:"resolution_notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`

	Session   *ProctoringSession   `json:"-" gorm:"foreignKey:SessionID"`
	Violation *ProctoringViolation `json:"-" gorm:"foreignKey:ViolationID"`
}

func (ProctoringAlert) TableName() string {
	return "proctoring_alerts"
}
