package models

import (
	"time"

	"gorm.io/datatypes"
)

type ProctoringEventType string

const (
	EventNoFace            ProctoringEventType = "no_face"
	EventMultipleFaces     ProctoringEventType = "multiple_faces"
	EventObjectDetected    ProctoringEventType = "object_detected"
	EventLookingAway       ProctoringEventType = "looking_away"
	EventAudioConversation ProctoringEventType = "audio_conversation"
	EventAudioUnusual      ProctoringEventType = "audio_unusual"
	EventSnapshotCaptured  ProctoringEventType = "snapshot_captured"
	EventTabSwitch         ProctoringEventType = "tab_switch"
	EventFullscreenExit    ProctoringEventType = "fullscreen_exit"
)

// ProctoringEvent is one detection-cycle outcome. Immutable once written;
// the ordered set of events is the session's audit log.
type ProctoringEvent struct {
	ID        uint                `json:"id" gorm:"primaryKey"`
	SessionID uint                `json:"session_id" gorm:"not null;index"`
	Type      ProctoringEventType `json:"type" gorm:"not null;index"`

	DetectedAt time.Time `json:"detected_at" gorm:"not null;index"`
	TimeOffset int       `json:"time_offset"` // Seconds from session start

	AIConfidence float64 `json:"ai_confidence"` // 0-1
	Flagged      bool    `json:"flagged" gorm:"default:false;index"`

	// Evidence
	SnapshotURL *string        `json:"snapshot_url" gorm:"size:500"`
	Metadata    datatypes.JSON `json:"metadata" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`

	Session *ProctoringSession `json:"-" gorm:"foreignKey:SessionID"`
}

func (ProctoringEvent) TableName() string {
	return "proctoring_events"
}
