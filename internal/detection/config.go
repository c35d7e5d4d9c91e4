package detection

import (
	"encoding/json"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

// ModalityConfig drives one periodic check.
type ModalityConfig struct {
	Enabled             bool          `json:"enabled"`
	Interval            time.Duration `json:"interval"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
}

type Config struct {
	Face   ModalityConfig `json:"face"`
	Object ModalityConfig `json:"object"`
	Gaze   ModalityConfig `json:"gaze"`
	Audio  ModalityConfig `json:"audio"`

	// Grace periods: an undesired condition shorter than these never
	// produces an event.
	MaxNoFaceDuration   time.Duration `json:"max_no_face_duration"`
	MaxLookAwayDuration time.Duration `json:"max_look_away_duration"`

	// Elapsed time past the grace period after which severity escalates
	// from medium to high.
	EscalationDuration time.Duration `json:"escalation_duration"`

	BlockedObjects        []string `json:"blocked_objects"`
	ConversationThreshold float64  `json:"conversation_threshold"`
}

func DefaultConfig() Config {
	return Config{
		Face:                  ModalityConfig{Enabled: true, Interval: 2 * time.Second, ConfidenceThreshold: 0.6},
		Object:                ModalityConfig{Enabled: true, Interval: 5 * time.Second, ConfidenceThreshold: 0.6},
		Gaze:                  ModalityConfig{Enabled: true, Interval: 2 * time.Second, ConfidenceThreshold: 0.6},
		Audio:                 ModalityConfig{Enabled: true, Interval: 3 * time.Second, ConfidenceThreshold: 0.5},
		MaxNoFaceDuration:     10 * time.Second,
		MaxLookAwayDuration:   10 * time.Second,
		EscalationDuration:    20 * time.Second,
		BlockedObjects:        []string{"cell phone", "book", "laptop", "tablet"},
		ConversationThreshold: 0.5,
	}
}

// withDefaults fills unset fields from DefaultConfig so partial configs
// merge into a complete one.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	c.Face = c.Face.withDefaults(def.Face)
	c.Object = c.Object.withDefaults(def.Object)
	c.Gaze = c.Gaze.withDefaults(def.Gaze)
	c.Audio = c.Audio.withDefaults(def.Audio)
	if c.MaxNoFaceDuration <= 0 {
		c.MaxNoFaceDuration = def.MaxNoFaceDuration
	}
	if c.MaxLookAwayDuration <= 0 {
		c.MaxLookAwayDuration = def.MaxLookAwayDuration
	}
	if c.EscalationDuration <= 0 {
		c.EscalationDuration = def.EscalationDuration
	}
	if len(c.BlockedObjects) == 0 {
		c.BlockedObjects = def.BlockedObjects
	}
	if c.ConversationThreshold <= 0 {
		c.ConversationThreshold = def.ConversationThreshold
	}
	return c
}

func (m ModalityConfig) withDefaults(def ModalityConfig) ModalityConfig {
	if m.Interval <= 0 {
		m.Interval = def.Interval
	}
	if m.ConfidenceThreshold <= 0 {
		m.ConfidenceThreshold = def.ConfidenceThreshold
	}
	return m
}

// ConfigFromSettings maps a persisted settings row onto an engine
// config.
func ConfigFromSettings(settings *models.ProctoringSettings) Config {
	cfg := DefaultConfig()
	if settings == nil {
		return cfg
	}
	cfg.Face.Enabled = settings.FaceDetectionEnabled
	cfg.Object.Enabled = settings.ObjectDetectionEnabled
	cfg.Gaze.Enabled = settings.GazeDetectionEnabled
	cfg.Audio.Enabled = settings.AudioDetectionEnabled

	if settings.FaceCheckInterval > 0 {
		cfg.Face.Interval = time.Duration(settings.FaceCheckInterval) * time.Second
	}
	if settings.ObjectCheckInterval > 0 {
		cfg.Object.Interval = time.Duration(settings.ObjectCheckInterval) * time.Second
	}
	if settings.GazeCheckInterval > 0 {
		cfg.Gaze.Interval = time.Duration(settings.GazeCheckInterval) * time.Second
	}
	if settings.AudioCheckInterval > 0 {
		cfg.Audio.Interval = time.Duration(settings.AudioCheckInterval) * time.Second
	}
	if settings.MaxNoFaceDuration > 0 {
		cfg.MaxNoFaceDuration = time.Duration(settings.MaxNoFaceDuration) * time.Second
	}
	if settings.MaxLookAwayDuration > 0 {
		cfg.MaxLookAwayDuration = time.Duration(settings.MaxLookAwayDuration) * time.Second
	}
	if settings.EscalationDuration > 0 {
		cfg.EscalationDuration = time.Duration(settings.EscalationDuration) * time.Second
	}
	if settings.ConfidenceThreshold > 0 {
		cfg.Face.ConfidenceThreshold = settings.ConfidenceThreshold
		cfg.Object.ConfidenceThreshold = settings.ConfidenceThreshold
		cfg.Gaze.ConfidenceThreshold = settings.ConfidenceThreshold
	}
	if settings.ConversationThreshold > 0 {
		cfg.ConversationThreshold = settings.ConversationThreshold
	}
	if len(settings.BlockedObjects) > 0 {
		var blocked []string
		if err := json.Unmarshal(settings.BlockedObjects, &blocked); err == nil && len(blocked) > 0 {
			cfg.BlockedObjects = blocked
		}
	}
	return cfg
}
