package models

import "time"

// ProctoringViolation is an event promoted to violation status because
// its severity crossed the session's reporting threshold. Reviewer
// annotation is the only permitted mutation; violations are never
// deleted.
type ProctoringViolation struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	SessionID uint `json:"session_id" gorm:"not null;index"`

	Type        ProctoringEventType `json:"type" gorm:"not null;index"`
	Severity    Severity            `json:"severity" gorm:"not null;index" validate:"severity"`
	Description string              `json:"description" gorm:"type:text"`

	DetectedAt   time.Time `json:"detected_at" gorm:"not null;index"`
	AIConfidence float64   `json:"ai_confidence"`
	EvidenceURL  *string   `json:"evidence_url" gorm:"size:500"`

	// Review status
	Reviewed    bool       `json:"reviewed" gorm:"default:false"`
	ReviewNotes *string    `json:"review_notes" gorm:"type:text"`
	ReviewedBy  *string    `json:"reviewed_by" gorm:"size:255"`
	ReviewedAt  *time.Time `json:"reviewed_at"`

	CreatedAt time.Time `json:"created_at"`

	Session *ProctoringSession `json:"-" gorm:"foreignKey:SessionID"`
}

func (ProctoringViolation) TableName() string {
	return "proctoring_violations"
}
