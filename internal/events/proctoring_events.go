package events

import (
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/google/uuid"
)

// EventType represents the proctoring occurrences published to the bus.
type EventType string

const (
	// Session lifecycle events
	EventSessionStarted    EventType = "session.started"
	EventSessionCompleted  EventType = "session.completed"
	EventSessionTerminated EventType = "session.terminated"

	// Detection flow events
	EventViolationRecorded EventType = "violation.recorded"
	EventAlertRaised       EventType = "alert.raised"
	EventInterventionSent  EventType = "intervention.sent"
)

// ProctoringEvent is the base envelope for everything on the bus; the
// notification service and the live-monitoring subscription both
// consume it.
type ProctoringEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type SessionStartedEvent struct {
	SessionID uint      `json:"session_id"`
	ExamID    uint      `json:"exam_id"`
	StudentID string    `json:"student_id"`
	StartedAt time.Time `json:"started_at"`
}

type SessionEndedEvent struct {
	SessionID uint                 `json:"session_id"`
	ExamID    uint                 `json:"exam_id"`
	StudentID string               `json:"student_id"`
	Status    models.SessionStatus `json:"status"`
	EndedAt   time.Time            `json:"ended_at"`
	Reason    string               `json:"reason,omitempty"`
}

type ViolationRecordedEvent struct {
	SessionID   uint                       `json:"session_id"`
	ExamID      uint                       `json:"exam_id"`
	StudentID   string                     `json:"student_id"`
	ViolationID uint                       `json:"violation_id"`
	Type        models.ProctoringEventType `json:"type"`
	Severity    models.Severity            `json:"severity"`
	DetectedAt  time.Time                  `json:"detected_at"`
}

type AlertRaisedEvent struct {
	SessionID uint                       `json:"session_id"`
	ExamID    uint                       `json:"exam_id"`
	StudentID string                     `json:"student_id"`
	AlertID   uint                       `json:"alert_id"`
	Type      models.ProctoringEventType `json:"type"`
	Severity  models.Severity            `json:"severity"`
	Message   string                     `json:"message"`
}

type InterventionSentEvent struct {
	SessionID uint                    `json:"session_id"`
	ExamID    uint                    `json:"exam_id"`
	StudentID string                  `json:"student_id"`
	Type      models.InterventionType `json:"type"`
	Message   string                  `json:"message"`
	SentBy    string                  `json:"sent_by"` // empty for the auto-terminate policy
	SentAt    time.Time               `json:"sent_at"`
}

// Event factory functions

func newEvent(eventType EventType, data interface{}) *ProctoringEvent {
	return &ProctoringEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "proctoring-service",
		Version:   "1.0",
		Data:      data,
	}
}

func NewSessionStartedEvent(session *models.ProctoringSession, at time.Time) *ProctoringEvent {
	return newEvent(EventSessionStarted, SessionStartedEvent{
		SessionID: session.ID,
		ExamID:    session.ExamID,
		StudentID: session.StudentID,
		StartedAt: at,
	})
}

func NewSessionEndedEvent(session *models.ProctoringSession, reason string, at time.Time) *ProctoringEvent {
	eventType := EventSessionCompleted
	if session.Status == models.SessionTerminated {
		eventType = EventSessionTerminated
	}
	return newEvent(eventType, SessionEndedEvent{
		SessionID: session.ID,
		ExamID:    session.ExamID,
		StudentID: session.StudentID,
		Status:    session.Status,
		EndedAt:   at,
		Reason:    reason,
	})
}

func NewViolationRecordedEvent(session *models.ProctoringSession, violation *models.ProctoringViolation) *ProctoringEvent {
	return newEvent(EventViolationRecorded, ViolationRecordedEvent{
		SessionID:   session.ID,
		ExamID:      session.ExamID,
		StudentID:   session.StudentID,
		ViolationID: violation.ID,
		Type:        violation.Type,
		Severity:    violation.Severity,
		DetectedAt:  violation.DetectedAt,
	})
}

func NewAlertRaisedEvent(session *models.ProctoringSession, alert *models.ProctoringAlert) *ProctoringEvent {
	return newEvent(EventAlertRaised, AlertRaisedEvent{
		SessionID: session.ID,
		ExamID:    session.ExamID,
		StudentID: session.StudentID,
		AlertID:   alert.ID,
		Type:      alert.Type,
		Severity:  alert.Severity,
		Message:   alert.Message,
	})
}

func NewInterventionSentEvent(session *models.ProctoringSession, intervention *models.ProctoringIntervention) *ProctoringEvent {
	return newEvent(EventInterventionSent, InterventionSentEvent{
		SessionID: session.ID,
		ExamID:    session.ExamID,
		StudentID: session.StudentID,
		Type:      intervention.Type,
		Message:   intervention.Message,
		SentBy:    intervention.SentBy,
		SentAt:    intervention.SentAt,
	})
}
