package models

import "time"

type InterventionType string

const (
	InterventionWarning   InterventionType = "warning"
	InterventionPause     InterventionType = "pause"
	InterventionResume    InterventionType = "resume"
	InterventionTerminate InterventionType = "terminate"
)

// ProctoringIntervention records an action a teacher (or the
// auto-terminate policy) took against a session. Write-once.
type ProctoringIntervention struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	SessionID uint `json:"session_id" gorm:"not null;index"`

	Type    InterventionType `json:"type" gorm:"not null" validate:"intervention_type"`
	Message string           `json:"message" gorm:"type:text"`

	// Empty SentBy marks an automatic policy intervention.
	SentBy string    `json:"sent_by" gorm:"size:255"`
	SentAt time.Time `json:"sent_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`

	Session *ProctoringSession `json:"-" gorm:"foreignKey:SessionID"`
}

func (ProctoringIntervention) TableName() string {
	return "proctoring_interventions"
}
