package models

import (
	"time"

	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionActive     SessionStatus = "active"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
	SessionTerminated SessionStatus = "terminated"
)

// IsTerminal reports whether the status permits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionTerminated
}

type ProctoringSession struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	StudentID string `json:"student_id" gorm:"not null;size:255;index"`
	ExamID    uint   `json:"exam_id" gorm:"not null;index"`

	Status SessionStatus `json:"status" gorm:"default:pending;index" validate:"omitempty,session_status"`

	// Timing
	StartedAt      *time.Time `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`

	// Rolling aggregates, maintained on every recorded detection
	TotalEvents     int     `json:"total_events" gorm:"default:0"`
	FlaggedEvents   int     `json:"flagged_events" gorm:"default:0"`
	TotalViolations int     `json:"total_violations" gorm:"default:0"`
	ConfidenceScore float64 `json:"confidence_score" gorm:"default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Settings      ProctoringSettings      `json:"settings" gorm:"foreignKey:SessionID"`
	Events        []ProctoringEvent       `json:"events,omitempty" gorm:"foreignKey:SessionID"`
	Violations    []ProctoringViolation   `json:"violations,omitempty" gorm:"foreignKey:SessionID"`
	Alerts        []ProctoringAlert       `json:"alerts,omitempty" gorm:"foreignKey:SessionID"`
	Interventions []ProctoringIntervention `json:"interventions,omitempty" gorm:"foreignKey:SessionID"`
	Student       *User                   `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

func (ProctoringSession) TableName() string {
	return "proctoring_sessions"
}

// Duration returns the session length. Open sessions are measured
// against now.
func (s *ProctoringSession) Duration(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(*s.StartedAt) {
		return 0
	}
	return end.Sub(*s.StartedAt)
}

// TimeOffset maps a detection wall-clock time to a session-start-relative
// offset in seconds, clamped at zero for detections that land before
// activation is visible.
func (s *ProctoringSession) TimeOffset(at time.Time) int {
	if s.StartedAt == nil || at.Before(*s.StartedAt) {
		return 0
	}
	return int(at.Sub(*s.StartedAt) / time.Second)
}
