package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
)

// ===== REPORT TYPES =====

type ReportFormat string

const (
	ReportFormatJSON ReportFormat = "json"
	ReportFormatText ReportFormat = "text"
)

// SessionReport is the complete post-exam record for one session: the
// session row, the reduced statistics and the full histories.
type SessionReport struct {
	GeneratedAt   time.Time                        `json:"generated_at"`
	Session       *models.ProctoringSession        `json:"session"`
	Stats         repositories.SessionStats        `json:"stats"`
	Events        []*models.ProctoringEvent        `json:"events"`
	Violations    []*models.ProctoringViolation    `json:"violations"`
	Alerts        []*models.ProctoringAlert        `json:"alerts"`
	Interventions []*models.ProctoringIntervention `json:"interventions"`
}

// RenderedReport is the serialized form handed back to the transport.
type RenderedReport struct {
	Format      ReportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	Data        []byte       `json:"data"`
}

// ===== SERVICE INTERFACE =====

type ReportService interface {
	BuildReport(ctx context.Context, sessionID uint) (*SessionReport, error)
	RenderReport(ctx context.Context, sessionID uint, format ReportFormat) (*RenderedReport, error)
}

type reportService struct {
	repo   repositories.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewReportService(repo repositories.Repository, logger *slog.Logger) ReportService {
	return &reportService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// ===== REPORT BUILDING =====

// BuildReport reduces the session's stored history into a report. It
// works for any session regardless of status; a session with no events
// yields zeroed statistics.
func (s *reportService) BuildReport(ctx context.Context, sessionID uint) (*SessionReport, error) {
	session, err := s.repo.Session().GetByIDWithDetails(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	eventList, err := s.repo.Event().GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	violations, err := s.repo.Violation().GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get violations: %w", err)
	}
	alerts, err := s.repo.Alert().GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	interventions, err := s.repo.Intervention().GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get interventions: %w", err)
	}

	report := &SessionReport{
		GeneratedAt:   s.now(),
		Session:       session,
		Stats:         reduceStats(eventList, violations),
		Events:        eventList,
		Violations:    violations,
		Alerts:        alerts,
		Interventions: interventions,
	}
	report.Stats.Duration = session.Duration(report.GeneratedAt)

	s.logger.Info("Report built",
		"session_id", sessionID,
		"events", len(eventList),
		"violations", len(violations))
	return report, nil
}

// reduceStats folds the stored history into the report statistics. The
// stored rows are the source of truth, not the session's rolling
// counters, so a report survives counter drift.
func reduceStats(eventList []*models.ProctoringEvent, violations []*models.ProctoringViolation) repositories.SessionStats {
	stats := repositories.SessionStats{
		TotalEvents:          len(eventList),
		TotalViolations:      len(violations),
		ViolationsBySeverity: make(map[models.Severity]int),
		ViolationsByType:     make(map[models.ProctoringEventType]int),
	}

	var confidenceSum float64
	for _, event := range eventList {
		if event.Flagged {
			stats.FlaggedEvents++
		}
		confidenceSum += event.AIConfidence
	}
	// Guard the zero-event session; its average is 0, not NaN.
	if stats.TotalEvents > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.TotalEvents)
	}

	for _, violation := range violations {
		stats.ViolationsBySeverity[violation.Severity]++
		stats.ViolationsByType[violation.Type]++
	}
	return stats
}

// ===== RENDERING =====

func (s *reportService) RenderReport(ctx context.Context, sessionID uint, format ReportFormat) (*RenderedReport, error) {
	switch format {
	case ReportFormatJSON, ReportFormatText:
	case "":
		format = ReportFormatJSON
	default:
		return nil, ErrFormatNotSupported
	}

	report, err := s.BuildReport(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch format {
	case ReportFormatText:
		return &RenderedReport{
			Format:      ReportFormatText,
			ContentType: "text/plain; charset=utf-8",
			Data:        []byte(renderText(report)),
		}, nil
	default:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to render report: %w", err)
		}
		return &RenderedReport{
			Format:      ReportFormatJSON,
			ContentType: "application/json",
			Data:        data,
		}, nil
	}
}

// renderText formats the same report the JSON renderer serializes as a
// human-readable summary.
func renderText(report *SessionReport) string {
	var b strings.Builder
	session := report.Session

	fmt.Fprintf(&b, "Proctoring Report - Session %d\n", session.ID)
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "Student:  %s\n", session.StudentID)
	fmt.Fprintf(&b, "Exam:     %d\n", session.ExamID)
	fmt.Fprintf(&b, "Status:   %s\n", session.Status)
	if session.StartedAt != nil {
		fmt.Fprintf(&b, "Started:  %s\n", session.StartedAt.Format(time.RFC3339))
	}
	if session.EndedAt != nil {
		fmt.Fprintf(&b, "Ended:    %s\n", session.EndedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Duration: %s\n", report.Stats.Duration.Round(time.Second))
	b.WriteString("\n")

	stats := report.Stats
	fmt.Fprintf(&b, "Events:             %d (%d flagged)\n", stats.TotalEvents, stats.FlaggedEvents)
	fmt.Fprintf(&b, "Violations:         %d\n", stats.TotalViolations)
	fmt.Fprintf(&b, "Average confidence: %.2f\n", stats.AverageConfidence)

	if stats.TotalViolations == 0 {
		b.WriteString("\nNo violations detected\n")
	}
	if len(stats.ViolationsBySeverity) > 0 {
		b.WriteString("\nViolations by severity:\n")
		for _, severity := range sortedSeverities(stats.ViolationsBySeverity) {
			fmt.Fprintf(&b, "  %-8s %d\n", severity, stats.ViolationsBySeverity[severity])
		}
	}
	if len(stats.ViolationsByType) > 0 {
		b.WriteString("\nViolations by type:\n")
		for _, eventType := range sortedTypes(stats.ViolationsByType) {
			fmt.Fprintf(&b, "  %-20s %d\n", eventType, stats.ViolationsByType[eventType])
		}
	}

	if len(report.Violations) > 0 {
		b.WriteString("\nViolation timeline:\n")
		for _, violation := range report.Violations {
			reviewed := ""
			if violation.Reviewed {
				reviewed = " [reviewed]"
			}
			fmt.Fprintf(&b, "  %s  %-10s %-20s conf=%.2f%s\n",
				violation.DetectedAt.Format(time.RFC3339),
				violation.Severity,
				violation.Type,
				violation.AIConfidence,
				reviewed)
		}
	}

	if len(report.Interventions) > 0 {
		b.WriteString("\nInterventions:\n")
		for _, intervention := range report.Interventions {
			sentBy := intervention.SentBy
			if sentBy == "" {
				sentBy = "auto"
			}
			fmt.Fprintf(&b, "  %s  %-10s by %s\n",
				intervention.SentAt.Format(time.RFC3339),
				intervention.Type,
				sentBy)
		}
	}

	return b.String()
}

func sortedSeverities(m map[models.Severity]int) []models.Severity {
	out := make([]models.Severity, 0, len(m))
	for severity := range m {
		out = append(out, severity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() > out[j].Rank() })
	return out
}

func sortedTypes(m map[models.ProctoringEventType]int) []models.ProctoringEventType {
	out := make([]models.ProctoringEventType, 0, len(m))
	for eventType := range m {
		out = append(out, eventType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
