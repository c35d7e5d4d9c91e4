package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/detection"
	"github.com/SAP-F-2025/proctoring-service/internal/events"
	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/proctoring-service/internal/utils"
	"gorm.io/datatypes"
)

// ===== REQUEST / RESPONSE TYPES =====

type CreateSessionRequest struct {
	StudentID string                 `json:"student_id" validate:"required"`
	ExamID    uint                   `json:"exam_id" validate:"required"`
	Settings  *SessionSettingsUpdate `json:"settings,omitempty"`
}

// SessionSettingsUpdate carries only the fields the caller wants to
// override; nil fields keep the defaults.
type SessionSettingsUpdate struct {
	AutoTerminate      *bool            `json:"auto_terminate,omitempty"`
	ViolationThreshold *models.Severity `json:"violation_threshold,omitempty" validate:"omitempty,severity"`

	FaceDetectionEnabled   *bool `json:"face_detection_enabled,omitempty"`
	ObjectDetectionEnabled *bool `json:"object_detection_enabled,omitempty"`
	GazeDetectionEnabled   *bool `json:"gaze_detection_enabled,omitempty"`
	AudioDetectionEnabled  *bool `json:"audio_detection_enabled,omitempty"`

	MaxNoFaceDuration     *int     `json:"max_no_face_duration,omitempty" validate:"omitempty,min=0,max=300"`
	MaxLookAwayDuration   *int     `json:"max_look_away_duration,omitempty" validate:"omitempty,min=0,max=300"`
	EscalationDuration    *int     `json:"escalation_duration,omitempty" validate:"omitempty,min=1,max=600"`
	ConfidenceThreshold   *float64 `json:"confidence_threshold,omitempty" validate:"omitempty,min=0,max=1"`
	ConversationThreshold *float64 `json:"conversation_threshold,omitempty" validate:"omitempty,min=0,max=1"`

	BlockedObjects []string `json:"blocked_objects,omitempty"`
}

type SendInterventionRequest struct {
	Type    models.InterventionType `json:"type" validate:"required,intervention_type"`
	Message string                  `json:"message" validate:"max=2000"`
	SentBy  string                  `json:"sent_by" validate:"required"`
}

type ReviewViolationRequest struct {
	ReviewerID string  `json:"reviewer_id" validate:"required"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type StreamChunk struct {
	Kind       string    `json:"kind" validate:"required,oneof=video audio screen"`
	Size       int       `json:"size" validate:"min=0"`
	ReceivedAt time.Time `json:"received_at"`
}

// DetectionOutcome reports what a recorded detection produced. The event
// is always present on success; violation, alert and termination depend
// on the session's policy.
type DetectionOutcome struct {
	Event      *models.ProctoringEvent     `json:"event"`
	Violation  *models.ProctoringViolation `json:"violation,omitempty"`
	Alert      *models.ProctoringAlert     `json:"alert,omitempty"`
	Terminated bool                        `json:"terminated"`
}

type SessionListResponse struct {
	Sessions []*models.ProctoringSession `json:"sessions"`
	Total    int64                       `json:"total"`
	Limit    int                         `json:"limit"`
	Offset   int                         `json:"offset"`
}

// ===== SERVICE INTERFACE =====

type ProctoringService interface {
	// Session lifecycle
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*models.ProctoringSession, error)
	GetSession(ctx context.Context, id uint) (*models.ProctoringSession, error)
	ListSessions(ctx context.Context, filters repositories.SessionFilters) (*SessionListResponse, error)
	ActivateSession(ctx context.Context, id uint) (*models.ProctoringSession, error)
	CompleteSession(ctx context.Context, id uint) (*models.ProctoringSession, error)

	// Detection flow
	RecordDetection(ctx context.Context, sessionID uint, result detection.DetectionResult) (*DetectionOutcome, error)
	ProcessStreamChunk(ctx context.Context, sessionID uint, chunk StreamChunk) error

	// Interventions and review
	SendIntervention(ctx context.Context, sessionID uint, req *SendInterventionRequest) (*models.ProctoringIntervention, error)
	ReviewViolation(ctx context.Context, violationID uint, req *ReviewViolationRequest) (*models.ProctoringViolation, error)

	// History reads
	GetSessionEvents(ctx context.Context, sessionID uint) ([]*models.ProctoringEvent, error)
	GetSessionViolations(ctx context.Context, sessionID uint) ([]*models.ProctoringViolation, error)
}

type proctoringService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *utils.Validator
	now       func() time.Time
}

func NewProctoringService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *utils.Validator) ProctoringService {
	return &proctoringService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		now:       time.Now,
	}
}

// ===== SESSION LIFECYCLE =====

func (s *proctoringService) CreateSession(ctx context.Context, req *CreateSessionRequest) (*models.ProctoringSession, error) {
	s.logger.Info("Creating proctoring session",
		"exam_id", req.ExamID,
		"student_id", req.StudentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// One open session per student per exam
	existing, err := s.repo.Session().GetByStudentAndExam(ctx, req.StudentID, req.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing sessions: %w", err)
	}
	for _, sess := range existing {
		if !sess.Status.IsTerminal() {
			return nil, ErrSessionDuplicateStart
		}
	}

	session := &models.ProctoringSession{
		StudentID:      req.StudentID,
		ExamID:         req.ExamID,
		Status:         models.SessionPending,
		LastActivityAt: s.now(),
	}
	session.Settings = buildSettings(req.Settings)

	if err := s.repo.Session().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Proctoring session created", "session_id", session.ID)
	return session, nil
}

func (s *proctoringService) GetSession(ctx context.Context, id uint) (*models.ProctoringSession, error) {
	session, err := s.repo.Session().GetByIDWithDetails(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *proctoringService) ListSessions(ctx context.Context, filters repositories.SessionFilters) (*SessionListResponse, error) {
	sessions, total, err := s.repo.Session().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return &SessionListResponse{
		Sessions: sessions,
		Total:    total,
		Limit:    filters.Limit,
		Offset:   filters.Offset,
	}, nil
}

// ActivateSession starts a pending session or resumes a paused one.
func (s *proctoringService) ActivateSession(ctx context.Context, id uint) (*models.ProctoringSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.SessionPending:
		now := s.now()
		session.Status = models.SessionActive
		session.StartedAt = &now
		session.LastActivityAt = now
		if err := s.repo.Session().Update(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to activate session: %w", err)
		}
		s.publish(ctx, events.NewSessionStartedEvent(session, now))
		s.logger.Info("Proctoring session activated", "session_id", session.ID)
	case models.SessionPaused:
		session.Status = models.SessionActive
		session.LastActivityAt = s.now()
		if err := s.repo.Session().Update(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to resume session: %w", err)
		}
		s.logger.Info("Proctoring session resumed", "session_id", session.ID)
	case models.SessionActive:
		return nil, ErrSessionAlreadyActive
	default:
		return nil, ErrSessionEnded
	}

	return session, nil
}

func (s *proctoringService) CompleteSession(ctx context.Context, id uint) (*models.ProctoringSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Status.IsTerminal() {
		// Completing an ended session is a no-op; ended_at is written once.
		return session, nil
	}
	if session.Status == models.SessionPending {
		return nil, ErrSessionNotActive
	}

	now := s.now()
	session.Status = models.SessionCompleted
	session.EndedAt = &now
	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}

	s.publish(ctx, events.NewSessionEndedEvent(session, "completed by student", now))
	s.logger.Info("Proctoring session completed", "session_id", session.ID)
	return session, nil
}

// ===== DETECTION FLOW =====

// RecordDetection persists one detection-cycle outcome and applies the
// session's reporting policy: aggregate counters always move, a
// violation is written when severity reaches the session threshold, an
// alert when the result demands one, and a critical violation under the
// auto-terminate policy ends the session atomically.
func (s *proctoringService) RecordDetection(ctx context.Context, sessionID uint, result detection.DetectionResult) (*DetectionOutcome, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionNotActive
	}
	if !result.Severity.Valid() {
		return nil, ErrEventInvalidSeverity
	}

	detectedAt := result.Timestamp
	if detectedAt.IsZero() {
		detectedAt = s.now()
	}

	isViolation := result.Severity.AtLeast(session.Settings.ViolationThreshold)

	event := &models.ProctoringEvent{
		SessionID:    session.ID,
		Type:         result.EventType,
		DetectedAt:   detectedAt,
		TimeOffset:   session.TimeOffset(detectedAt),
		AIConfidence: result.Confidence,
		Flagged:      isViolation,
	}
	if len(result.Details) > 0 {
		if raw, err := json.Marshal(result.Details); err == nil {
			event.Metadata = datatypes.JSON(raw)
		}
	}

	// The audit log write is retried once before giving up; a second
	// failure means storage is down and the detection is lost.
	if err := s.repo.Event().Create(ctx, event); err != nil {
		s.logger.Warn("Event write failed, retrying once",
			"session_id", session.ID, "error", err)
		if err := s.repo.Event().Create(ctx, event); err != nil {
			return nil, fmt.Errorf("failed to record event: %w", err)
		}
	}

	outcome := &DetectionOutcome{Event: event}

	// Auto-terminate path: violation, alert, intervention and the
	// session's terminal state commit together or not at all.
	if isViolation && session.Settings.AutoTerminate && result.Severity == models.SeverityCritical {
		if err := s.autoTerminate(ctx, session, result, event, outcome); err != nil {
			return nil, err
		}
		return outcome, nil
	}

	session.TotalEvents++
	if isViolation {
		session.FlaggedEvents++
		session.TotalViolations++
	}
	session.ConfidenceScore = rollConfidence(session.ConfidenceScore, result.Confidence, session.TotalEvents)
	session.LastActivityAt = detectedAt
	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session aggregates: %w", err)
	}

	if isViolation {
		violation := violationFromResult(session.ID, result, detectedAt)
		if err := s.repo.Violation().Create(ctx, violation); err != nil {
			// Aggregates already moved; the report generator reconciles
			// from the event log, so we log and carry on.
			s.logger.Error("Violation write failed",
				"session_id", session.ID, "type", result.EventType, "error", err)
		} else {
			outcome.Violation = violation
			s.publish(ctx, events.NewViolationRecordedEvent(session, violation))
		}
	}

	// Alerts exist for high/critical only; a lower-severity result
	// carrying the flag (detections arrive from the client) is ignored.
	if result.RequiresAlert && result.Severity.AtLeast(models.SeverityHigh) {
		alert := alertFromResult(session.ID, outcome.Violation, result)
		if err := s.repo.Alert().Create(ctx, alert); err != nil {
			s.logger.Error("Alert write failed",
				"session_id", session.ID, "type", result.EventType, "error", err)
		} else {
			outcome.Alert = alert
			s.publish(ctx, events.NewAlertRaisedEvent(session, alert))
		}
	}

	return outcome, nil
}

func (s *proctoringService) autoTerminate(ctx context.Context, session *models.ProctoringSession, result detection.DetectionResult, event *models.ProctoringEvent, outcome *DetectionOutcome) error {
	now := s.now()
	violation := violationFromResult(session.ID, result, event.DetectedAt)
	var alert *models.ProctoringAlert
	intervention := &models.ProctoringIntervention{
		SessionID: session.ID,
		Type:      models.InterventionTerminate,
		Message:   fmt.Sprintf("Session terminated automatically: %s", result.EventType),
		SentBy:    "", // automatic policy
		SentAt:    now,
	}

	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Violation().Create(ctx, violation); err != nil {
			return fmt.Errorf("failed to record violation: %w", err)
		}
		if result.RequiresAlert {
			alert = alertFromResult(session.ID, violation, result)
			if err := tx.Alert().Create(ctx, alert); err != nil {
				return fmt.Errorf("failed to record alert: %w", err)
			}
		}
		if err := tx.Intervention().Create(ctx, intervention); err != nil {
			return fmt.Errorf("failed to record intervention: %w", err)
		}

		session.TotalEvents++
		session.FlaggedEvents++
		session.TotalViolations++
		session.ConfidenceScore = rollConfidence(session.ConfidenceScore, result.Confidence, session.TotalEvents)
		session.LastActivityAt = event.DetectedAt
		session.Status = models.SessionTerminated
		session.EndedAt = &now
		if err := tx.Session().Update(ctx, session); err != nil {
			return fmt.Errorf("failed to terminate session: %w", err)
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back; the session keeps running.
		session.Status = models.SessionActive
		session.EndedAt = nil
		return fmt.Errorf("auto-terminate failed: %w", err)
	}

	outcome.Violation = violation
	outcome.Alert = alert
	outcome.Terminated = true

	s.publish(ctx, events.NewViolationRecordedEvent(session, violation))
	if alert != nil {
		s.publish(ctx, events.NewAlertRaisedEvent(session, alert))
	}
	s.publish(ctx, events.NewInterventionSentEvent(session, intervention))
	s.publish(ctx, events.NewSessionEndedEvent(session, "auto-terminated on critical violation", now))

	s.logger.Warn("Session auto-terminated",
		"session_id", session.ID,
		"type", result.EventType,
		"confidence", result.Confidence)
	return nil
}

// ProcessStreamChunk acknowledges one media chunk from the client and
// refreshes the session's liveness marker.
func (s *proctoringService) ProcessStreamChunk(ctx context.Context, sessionID uint, chunk StreamChunk) error {
	if err := s.validator.Validate(&chunk); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.SessionActive {
		return ErrSessionNotActive
	}

	at := chunk.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}
	if err := s.repo.Session().TouchActivity(ctx, sessionID, at); err != nil {
		return fmt.Errorf("failed to touch session activity: %w", err)
	}

	s.logger.Debug("Stream chunk processed",
		"session_id", sessionID, "kind", chunk.Kind, "size", chunk.Size)
	return nil
}

// ===== INTERVENTIONS AND REVIEW =====

func (s *proctoringService) SendIntervention(ctx context.Context, sessionID uint, req *SendInterventionRequest) (*models.ProctoringIntervention, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	alreadyEnded := session.Status.IsTerminal()
	if alreadyEnded && req.Type != models.InterventionTerminate {
		return nil, ErrSessionEnded
	}

	switch req.Type {
	case models.InterventionWarning:
		// No state change; the record and the published event are the warning.
	case models.InterventionPause:
		if session.Status != models.SessionActive {
			return nil, ErrSessionNotActive
		}
		session.Status = models.SessionPaused
	case models.InterventionResume:
		if session.Status != models.SessionPaused {
			return nil, ErrSessionNotPaused
		}
		session.Status = models.SessionActive
	case models.InterventionTerminate:
		// Terminating an already-ended session is a no-op success: a
		// teacher terminate racing the auto-terminate policy must not
		// fail, and ended_at keeps its first value.
		if !alreadyEnded {
			session.Status = models.SessionTerminated
			session.EndedAt = &now
		}
	default:
		return nil, ErrInterventionInvalidType
	}

	intervention := &models.ProctoringIntervention{
		SessionID: sessionID,
		Type:      req.Type,
		Message:   req.Message,
		SentBy:    req.SentBy,
		SentAt:    now,
	}

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Intervention().Create(ctx, intervention); err != nil {
			return fmt.Errorf("failed to record intervention: %w", err)
		}
		if alreadyEnded {
			return nil
		}
		if err := tx.Session().Update(ctx, session); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewInterventionSentEvent(session, intervention))
	if req.Type == models.InterventionTerminate && !alreadyEnded {
		s.publish(ctx, events.NewSessionEndedEvent(session, req.Message, now))
	}

	s.logger.Info("Intervention sent",
		"session_id", sessionID,
		"type", req.Type,
		"sent_by", req.SentBy)
	return intervention, nil
}

func (s *proctoringService) ReviewViolation(ctx context.Context, violationID uint, req *ReviewViolationRequest) (*models.ProctoringViolation, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	violation, err := s.repo.Violation().GetByID(ctx, violationID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrViolationNotFound
		}
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}
	if violation.Reviewed {
		return nil, ErrViolationAlreadyReviewed
	}

	now := s.now()
	if err := s.repo.Violation().Review(ctx, violationID, req.ReviewerID, req.Notes, now); err != nil {
		return nil, fmt.Errorf("failed to review violation: %w", err)
	}

	violation.Reviewed = true
	violation.ReviewNotes = req.Notes
	violation.ReviewedBy = &req.ReviewerID
	violation.ReviewedAt = &now

	s.logger.Info("Violation reviewed",
		"violation_id", violationID, "reviewer_id", req.ReviewerID)
	return violation, nil
}

// ===== HISTORY READS =====

func (s *proctoringService) GetSessionEvents(ctx context.Context, sessionID uint) ([]*models.ProctoringEvent, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.Event().GetBySession(ctx, sessionID)
}

func (s *proctoringService) GetSessionViolations(ctx context.Context, sessionID uint) ([]*models.ProctoringViolation, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.Violation().GetBySession(ctx, sessionID)
}

// ===== HELPERS =====

func (s *proctoringService) publish(ctx context.Context, event *events.ProctoringEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishProctoringEvent(ctx, event); err != nil {
		// Persisted state is the source of truth; a lost event never
		// fails the operation.
		s.logger.Error("Failed to publish event",
			"event_type", event.Type, "error", err)
	}
}

// rollConfidence folds one more observation into the session's running
// average confidence.
func rollConfidence(current, observed float64, totalEvents int) float64 {
	if totalEvents <= 0 {
		return observed
	}
	return current + (observed-current)/float64(totalEvents)
}

func violationFromResult(sessionID uint, result detection.DetectionResult, detectedAt time.Time) *models.ProctoringViolation {
	return &models.ProctoringViolation{
		SessionID:    sessionID,
		Type:         result.EventType,
		Severity:     result.Severity,
		Description:  describeResult(result),
		DetectedAt:   detectedAt,
		AIConfidence: result.Confidence,
	}
}

func alertFromResult(sessionID uint, violation *models.ProctoringViolation, result detection.DetectionResult) *models.ProctoringAlert {
	alert := &models.ProctoringAlert{
		SessionID: sessionID,
		Type:      result.EventType,
		Severity:  result.Severity,
		Message:   describeResult(result),
		Status:    models.AlertPending,
	}
	if violation != nil && violation.ID != 0 {
		id := violation.ID
		alert.ViolationID = &id
	}
	return alert
}

func describeResult(result detection.DetectionResult) string {
	switch result.EventType {
	case models.EventNoFace:
		return "No face visible in the camera frame"
	case models.EventMultipleFaces:
		return "Multiple faces detected in the camera frame"
	case models.EventObjectDetected:
		if label, ok := result.Details["label"].(string); ok {
			return fmt.Sprintf("Blocked object detected: %s", label)
		}
		return "Blocked object detected"
	case models.EventLookingAway:
		return "Student looking away from the screen"
	case models.EventAudioConversation:
		return "Multiple voices detected on the audio stream"
	case models.EventAudioUnusual:
		return "Unusual audio level detected"
	case models.EventTabSwitch:
		return "Student switched away from the exam tab"
	case models.EventFullscreenExit:
		return "Student left fullscreen mode"
	default:
		return string(result.EventType)
	}
}

func buildSettings(update *SessionSettingsUpdate) models.ProctoringSettings {
	settings := models.ProctoringSettings{
		AutoTerminate:          false,
		ViolationThreshold:     models.SeverityMedium,
		FaceDetectionEnabled:   true,
		ObjectDetectionEnabled: true,
		GazeDetectionEnabled:   true,
		AudioDetectionEnabled:  true,
		FaceCheckInterval:      2,
		ObjectCheckInterval:    5,
		GazeCheckInterval:      2,
		AudioCheckInterval:     3,
		MaxNoFaceDuration:      10,
		MaxLookAwayDuration:    10,
		EscalationDuration:     20,
		ConfidenceThreshold:    0.6,
		ConversationThreshold:  0.5,
	}
	if update == nil {
		return settings
	}
	if update.AutoTerminate != nil {
		settings.AutoTerminate = *update.AutoTerminate
	}
	if update.ViolationThreshold != nil {
		settings.ViolationThreshold = *update.ViolationThreshold
	}
	if update.FaceDetectionEnabled != nil {
		settings.FaceDetectionEnabled = *update.FaceDetectionEnabled
	}
	if update.ObjectDetectionEnabled != nil {
		settings.ObjectDetectionEnabled = *update.ObjectDetectionEnabled
	}
	if update.GazeDetectionEnabled != nil {
		settings.GazeDetectionEnabled = *update.GazeDetectionEnabled
	}
	if update.AudioDetectionEnabled != nil {
		settings.AudioDetectionEnabled = *update.AudioDetectionEnabled
	}
	if update.MaxNoFaceDuration != nil {
		settings.MaxNoFaceDuration = *update.MaxNoFaceDuration
	}
	if update.MaxLookAwayDuration != nil {
		settings.MaxLookAwayDuration = *update.MaxLookAwayDuration
	}
	if update.EscalationDuration != nil {
		settings.EscalationDuration = *update.EscalationDuration
	}
	if update.ConfidenceThreshold != nil {
		settings.ConfidenceThreshold = *update.ConfidenceThreshold
	}
	if update.ConversationThreshold != nil {
		settings.ConversationThreshold = *update.ConversationThreshold
	}
	if len(update.BlockedObjects) > 0 {
		if raw, err := json.Marshal(update.BlockedObjects); err == nil {
			settings.BlockedObjects = datatypes.JSON(raw)
		}
	}
	return settings
}
