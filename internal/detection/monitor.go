package detection

import (
	"strings"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

// durationMonitor implements the shared escalation pattern for
// conditions that are only a problem when sustained (no face, looking
// away). Nothing is emitted until the condition has been continuously
// active for longer than the grace period; severity steps from medium
// to high once the escalation duration has also passed. Each severity
// tier is reported once per episode, and recovery silently resets the
// episode.
type durationMonitor struct {
	eventType  models.ProctoringEventType
	grace      time.Duration
	escalation time.Duration

	active       bool
	activeSince  time.Time
	lastReported models.Severity
}

func (m *durationMonitor) observe(conditionActive bool, confidence float64, at time.Time) *DetectionResult {
	if !conditionActive {
		m.active = false
		m.lastReported = ""
		return nil
	}
	if !m.active {
		m.active = true
		m.activeSince = at
		m.lastReported = ""
	}

	elapsed := at.Sub(m.activeSince)
	if elapsed <= m.grace {
		return nil
	}

	severity := models.SeverityMedium
	if elapsed > m.grace+m.escalation {
		severity = models.SeverityHigh
	}
	if severity == m.lastReported {
		return nil
	}
	m.lastReported = severity

	return &DetectionResult{
		Timestamp:     at,
		EventType:     m.eventType,
		Severity:      severity,
		Confidence:    confidence,
		RequiresAlert: severity == models.SeverityHigh,
		Details: map[string]interface{}{
			"duration_seconds": int(elapsed / time.Second),
		},
	}
}

// faceMonitor combines the sustained no-face check with the
// instantaneous multiple-faces check. Multiple faces are a violation by
// presence, not duration, so they fire critical immediately; the
// transition guard keeps a held-up phone from producing one event per
// tick.
type faceMonitor struct {
	noFace    durationMonitor
	multiFace bool
}

func newFaceMonitor(cfg Config) *faceMonitor {
	return &faceMonitor{
		noFace: durationMonitor{
			eventType:  models.EventNoFace,
			grace:      cfg.MaxNoFaceDuration,
			escalation: cfg.EscalationDuration,
		},
	}
}

func (m *faceMonitor) observe(a FaceAnalysis, at time.Time) *DetectionResult {
	if a.Count > 1 {
		// A face is visible, so the no-face episode ends here.
		m.noFace.active = false
		m.noFace.lastReported = ""
		if m.multiFace {
			return nil
		}
		m.multiFace = true
		return &DetectionResult{
			Timestamp:     at,
			EventType:     models.EventMultipleFaces,
			Severity:      models.SeverityCritical,
			Confidence:    a.Confidence,
			RequiresAlert: true,
			Details: map[string]interface{}{
				"face_count": a.Count,
			},
		}
	}
	m.multiFace = false
	return m.noFace.observe(a.Count == 0, a.Confidence, at)
}

// gazeMonitor reports sustained looking-away with the same escalation
// curve as no-face.
type gazeMonitor struct {
	lookAway durationMonitor
}

func newGazeMonitor(cfg Config) *gazeMonitor {
	return &gazeMonitor{
		lookAway: durationMonitor{
			eventType:  models.EventLookingAway,
			grace:      cfg.MaxLookAwayDuration,
			escalation: cfg.EscalationDuration,
		},
	}
}

func (m *gazeMonitor) observe(a GazeAnalysis, at time.Time) *DetectionResult {
	return m.lookAway.observe(a.LookingAway, a.Confidence, at)
}

// objectMonitor fires immediately when a blocked object appears; one
// event per appearance episode.
type objectMonitor struct {
	blocked map[string]bool
	present bool
}

func newObjectMonitor(cfg Config) *objectMonitor {
	blocked := make(map[string]bool, len(cfg.BlockedObjects))
	for _, label := range cfg.BlockedObjects {
		blocked[strings.ToLower(label)] = true
	}
	return &objectMonitor{blocked: blocked}
}

func (m *objectMonitor) observe(a ObjectAnalysis, threshold float64, at time.Time) *DetectionResult {
	var labels []string
	maxConfidence := 0.0
	for _, obj := range a.Objects {
		if obj.Confidence < threshold {
			continue
		}
		if m.blocked[strings.ToLower(obj.Label)] {
			labels = append(labels, obj.Label)
			if obj.Confidence > maxConfidence {
				maxConfidence = obj.Confidence
			}
		}
	}
	if len(labels) == 0 {
		m.present = false
		return nil
	}
	if m.present {
		return nil
	}
	m.present = true
	return &DetectionResult{
		Timestamp:     at,
		EventType:     models.EventObjectDetected,
		Severity:      models.SeverityHigh,
		Confidence:    maxConfidence,
		RequiresAlert: true,
		Details: map[string]interface{}{
			"objects": labels,
		},
	}
}

// audioMonitor: simultaneous voices are a high-severity alert, raw
// volume above the conversation threshold is only medium and never
// alerts on its own.
type audioMonitor struct {
	conversationThreshold float64
	voices                bool
	loud                  bool
}

func newAudioMonitor(cfg Config) *audioMonitor {
	return &audioMonitor{conversationThreshold: cfg.ConversationThreshold}
}

func (m *audioMonitor) observe(a AudioAnalysis, at time.Time) *DetectionResult {
	if a.VoiceCount > 1 {
		m.loud = false
		if m.voices {
			return nil
		}
		m.voices = true
		return &DetectionResult{
			Timestamp:     at,
			EventType:     models.EventAudioConversation,
			Severity:      models.SeverityHigh,
			Confidence:    a.Confidence,
			RequiresAlert: true,
			Details: map[string]interface{}{
				"voice_count": a.VoiceCount,
			},
		}
	}
	m.voices = false

	if a.AverageVolume > m.conversationThreshold {
		if m.loud {
			return nil
		}
		m.loud = true
		return &DetectionResult{
			Timestamp:     at,
			EventType:     models.EventAudioUnusual,
			Severity:      models.SeverityMedium,
			Confidence:    a.Confidence,
			RequiresAlert: false,
			Details: map[string]interface{}{
				"average_volume": a.AverageVolume,
			},
		}
	}
	m.loud = false
	return nil
}
