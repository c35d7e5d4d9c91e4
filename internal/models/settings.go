package models

import "gorm.io/datatypes"

// ProctoringSettings holds the per-session detection thresholds and the
// termination policy, mirroring how assessments carry their own settings
// row.
type ProctoringSettings struct {
	SessionID uint `json:"session_id" gorm:"primaryKey"`

	// Policy
	AutoTerminate      bool     `json:"auto_terminate" gorm:"default:false"`
	ViolationThreshold Severity `json:"violation_threshold" gorm:"default:medium" validate:"omitempty,severity"`

	// Modality switches
	FaceDetectionEnabled   bool `json:"face_detection_enabled" gorm:"default:true"`
	ObjectDetectionEnabled bool `json:"object_detection_enabled" gorm:"default:true"`
	GazeDetectionEnabled   bool `json:"gaze_detection_enabled" gorm:"default:true"`
	AudioDetectionEnabled  bool `json:"audio_detection_enabled" gorm:"default:true"`

	// Check cadences (seconds)
	FaceCheckInterval   int `json:"face_check_interval" gorm:"default:2" validate:"min=0,max=60"`
	ObjectCheckInterval int `json:"object_check_interval" gorm:"default:5" validate:"min=0,max=60"`
	GazeCheckInterval   int `json:"gaze_check_interval" gorm:"default:2" validate:"min=0,max=60"`
	AudioCheckInterval  int `json:"audio_check_interval" gorm:"default:3" validate:"min=0,max=60"`

	// Grace periods and escalation tiers (seconds)
	MaxNoFaceDuration   int     `json:"max_no_face_duration" gorm:"default:10"`
	MaxLookAwayDuration int     `json:"max_look_away_duration" gorm:"default:10"`
	EscalationDuration  int     `json:"escalation_duration" gorm:"default:20"`
	ConfidenceThreshold float64 `json:"confidence_threshold" gorm:"default:0.6"`

	// Audio limits
	ConversationThreshold float64 `json:"conversation_threshold" gorm:"default:0.5"`

	// Object detection
	BlockedObjects datatypes.JSON `json:"blocked_objects" gorm:"type:jsonb"`
}

func (ProctoringSettings) TableName() string {
	return "proctoring_settings"
}
