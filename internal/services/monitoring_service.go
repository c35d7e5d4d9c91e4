package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/cache"
	"github.com/SAP-F-2025/proctoring-service/internal/events"
	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/ThreeDotsLabs/watermill/message"
)

// ===== RESPONSE TYPES =====

// SessionAttention is the triage classification the monitoring dashboard
// sorts by.
type SessionAttention string

const (
	AttentionNormal   SessionAttention = "normal"
	AttentionWarning  SessionAttention = "warning"
	AttentionCritical SessionAttention = "critical"
)

// MonitoredSession is one row of the live monitoring view: the session
// plus the derived attention level and its open alert count.
type MonitoredSession struct {
	Session    *models.ProctoringSession `json:"session"`
	Attention  SessionAttention          `json:"attention"`
	OpenAlerts int                       `json:"open_alerts"`
}

// MonitoringUpdate is pushed to Watch subscribers whenever something in
// the exam changed.
type MonitoringUpdate struct {
	ExamID   uint                `json:"exam_id"`
	Sessions []*MonitoredSession `json:"sessions"`
	At       time.Time           `json:"at"`
}

type ResolveAlertRequest struct {
	ResolvedBy string  `json:"resolved_by" validate:"required"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ===== SERVICE INTERFACE =====

type MonitoringService interface {
	GetActiveExamSessions(ctx context.Context, examID uint) ([]*MonitoredSession, error)
	GetPendingAlerts(ctx context.Context, examID uint) ([]*models.ProctoringAlert, error)
	GetExamStats(ctx context.Context, examID uint) (*repositories.ExamMonitoringStats, error)

	AcknowledgeAlert(ctx context.Context, alertID uint, acknowledgedBy string) (*models.ProctoringAlert, error)
	ResolveAlert(ctx context.Context, alertID uint, req *ResolveAlertRequest) (*models.ProctoringAlert, error)

	// Watch streams monitoring updates for one exam until ctx is
	// cancelled. Updates are pushed on bus activity when a bus is
	// wired, with a periodic refresh as fallback.
	Watch(ctx context.Context, examID uint) (<-chan MonitoringUpdate, error)
}

// violationWarningCount is how many recorded violations move a session
// to the warning tier even without an open high alert.
const violationWarningCount = 3

// monitorCacheTTL bounds how stale the dashboard view may be when many
// teachers poll the same exam.
const monitorCacheTTL = 2 * time.Second

type monitoringService struct {
	repo         repositories.Repository
	cache        cache.CacheService
	bus          *events.LocalBus
	logger       *slog.Logger
	pollInterval time.Duration
}

func NewMonitoringService(repo repositories.Repository, cacheService cache.CacheService, bus *events.LocalBus, logger *slog.Logger) MonitoringService {
	return &monitoringService{
		repo:         repo,
		cache:        cacheService,
		bus:          bus,
		logger:       logger,
		pollInterval: 5 * time.Second,
	}
}

// ===== DASHBOARD READS =====

func (s *monitoringService) GetActiveExamSessions(ctx context.Context, examID uint) ([]*MonitoredSession, error) {
	cacheKey := fmt.Sprintf("monitor:exam:%d:sessions", examID)
	if s.cache != nil {
		var cached []*MonitoredSession
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Monitoring cache read failed", "error", err)
		}
	}

	sessions, err := s.repo.Session().GetActiveByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active sessions: %w", err)
	}

	monitored := make([]*MonitoredSession, 0, len(sessions))
	for _, session := range sessions {
		open, err := s.repo.Alert().GetOpenBySession(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get open alerts for session %d: %w", session.ID, err)
		}
		monitored = append(monitored, &MonitoredSession{
			Session:    session,
			Attention:  classify(session, open),
			OpenAlerts: len(open),
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, monitored, monitorCacheTTL); err != nil {
			s.logger.Warn("Monitoring cache write failed", "error", err)
		}
	}
	return monitored, nil
}

// classify derives the attention level from what is currently unresolved
// on the session. An open critical alert dominates; an open high alert
// or a violation pile-up warns; everything else is normal.
func classify(session *models.ProctoringSession, openAlerts []*models.ProctoringAlert) SessionAttention {
	attention := AttentionNormal
	for _, alert := range openAlerts {
		if alert.Severity == models.SeverityCritical {
			return AttentionCritical
		}
		if alert.Severity == models.SeverityHigh {
			attention = AttentionWarning
		}
	}
	if attention == AttentionNormal && session.TotalViolations > violationWarningCount {
		attention = AttentionWarning
	}
	return attention
}

func (s *monitoringService) GetPendingAlerts(ctx context.Context, examID uint) ([]*models.ProctoringAlert, error) {
	alerts, err := s.repo.Alert().GetPendingByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending alerts: %w", err)
	}
	return alerts, nil
}

func (s *monitoringService) GetExamStats(ctx context.Context, examID uint) (*repositories.ExamMonitoringStats, error) {
	sessions, err := s.repo.Session().GetActiveByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active sessions: %w", err)
	}
	pending, err := s.repo.Alert().GetPendingByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending alerts: %w", err)
	}

	stats := &repositories.ExamMonitoringStats{PendingAlerts: len(pending)}
	for _, session := range sessions {
		switch session.Status {
		case models.SessionActive:
			stats.ActiveSessions++
		case models.SessionPaused:
			stats.PausedSessions++
		}
		stats.TotalViolations += session.TotalViolations
	}
	return stats, nil
}

// ===== ALERT WORKFLOW =====

func (s *monitoringService) AcknowledgeAlert(ctx context.Context, alertID uint, acknowledgedBy string) (*models.ProctoringAlert, error) {
	alert, err := s.repo.Alert().GetByID(ctx, alertID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	// Acknowledging twice, or acknowledging a resolved alert, changes
	// nothing; the status only moves forward.
	if !alert.Status.CanTransitionTo(models.AlertAcknowledged) {
		return alert, nil
	}

	now := time.Now()
	alert.Status = models.AlertAcknowledged
	alert.AcknowledgedBy = &acknowledgedBy
	alert.AcknowledgedAt = &now
	if err := s.repo.Alert().Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	s.invalidateExamCache(ctx, alert)
	s.logger.Info("Alert acknowledged", "alert_id", alertID, "by", acknowledgedBy)
	return alert, nil
}

func (s *monitoringService) ResolveAlert(ctx context.Context, alertID uint, req *ResolveAlertRequest) (*models.ProctoringAlert, error) {
	alert, err := s.repo.Alert().GetByID(ctx, alertID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	if alert.Status == models.AlertResolved {
		return alert, nil
	}

	now := time.Now()
	alert.Status = models.AlertResolved
	alert.ResolvedAt = &now
	alert.ResolutionNotes = req.Notes
	if alert.AcknowledgedBy == nil {
		// Resolving straight from pending implies acknowledgement.
		alert.AcknowledgedBy = &req.ResolvedBy
		alert.AcknowledgedAt = &now
	}
	if err := s.repo.Alert().Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}

	s.invalidateExamCache(ctx, alert)
	s.logger.Info("Alert resolved", "alert_id", alertID, "by", req.ResolvedBy)
	return alert, nil
}

func (s *monitoringService) invalidateExamCache(ctx context.Context, alert *models.ProctoringAlert) {
	if s.cache == nil {
		return
	}
	session, err := s.repo.Session().GetByID(ctx, alert.SessionID)
	if err != nil {
		return
	}
	key := fmt.Sprintf("monitor:exam:%d:sessions", session.ExamID)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("Monitoring cache invalidation failed", "key", key, "error", err)
	}
}

// ===== LIVE WATCH =====

func (s *monitoringService) Watch(ctx context.Context, examID uint) (<-chan MonitoringUpdate, error) {
	out := make(chan MonitoringUpdate, 1)

	var busCh <-chan *message.Message
	if s.bus != nil {
		msgs, err := s.bus.Subscribe(ctx)
		if err != nil {
			s.logger.Warn("Bus subscribe failed, watch falls back to polling", "error", err)
		} else {
			busCh = msgs
		}
	}

	go func() {
		defer close(out)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		// Initial snapshot so a new watcher is never empty-handed.
		s.pushUpdate(ctx, examID, out)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-busCh:
				if !ok {
					busCh = nil
					continue
				}
				msg.Ack()
				s.pushUpdate(ctx, examID, out)
			case <-ticker.C:
				s.pushUpdate(ctx, examID, out)
			}
		}
	}()
	return out, nil
}

func (s *monitoringService) pushUpdate(ctx context.Context, examID uint, out chan MonitoringUpdate) {
	sessions, err := s.GetActiveExamSessions(ctx, examID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Failed to build monitoring update", "exam_id", examID, "error", err)
		}
		return
	}
	update := MonitoringUpdate{ExamID: examID, Sessions: sessions, At: time.Now()}
	select {
	case out <- update:
	case <-ctx.Done():
	default:
		// A slow watcher keeps the newest update only.
		select {
		case <-out:
		default:
		}
		select {
		case out <- update:
		default:
		}
	}
}
