package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/detection"
	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReportFixture(t *testing.T) (ReportService, ProctoringService, *memory.Repository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRepository()
	svc, _ := newServiceWithRepo(repo)
	return NewReportService(repo, logger), svc, repo
}

func TestBuildReport_EmptySessionHasZeroedStats(t *testing.T) {
	reports, svc, _ := newReportFixture(t)
	ctx := context.Background()

	// Completed without a single recorded detection.
	session := createActiveSession(t, svc, &CreateSessionRequest{StudentID: "student-1", ExamID: 7})
	_, err := svc.CompleteSession(ctx, session.ID)
	require.NoError(t, err)

	report, err := reports.BuildReport(ctx, session.ID)
	require.NoError(t, err)

	assert.Zero(t, report.Stats.TotalEvents)
	assert.Zero(t, report.Stats.FlaggedEvents)
	assert.Zero(t, report.Stats.TotalViolations)
	assert.Zero(t, report.Stats.AverageConfidence) // 0, never NaN
	assert.Empty(t, report.Stats.ViolationsBySeverity)
	assert.Empty(t, report.Stats.ViolationsByType)
	assert.Empty(t, report.Events)
	assert.Empty(t, report.Violations)
}

func TestBuildReport_ReducesStoredHistory(t *testing.T) {
	reports, svc, _ := newReportFixture(t)
	ctx := context.Background()

	session := createActiveSession(t, svc, &CreateSessionRequest{StudentID: "student-1", ExamID: 7})

	detections := []detection.DetectionResult{
		{EventType: models.EventLookingAway, Severity: models.SeverityLow, Confidence: 0.6},
		{EventType: models.EventNoFace, Severity: models.SeverityMedium, Confidence: 0.8},
		{EventType: models.EventNoFace, Severity: models.SeverityHigh, Confidence: 0.9, RequiresAlert: true},
		{EventType: models.EventObjectDetected, Severity: models.SeverityHigh, Confidence: 0.9, RequiresAlert: true},
	}
	for _, result := range detections {
		_, err := svc.RecordDetection(ctx, session.ID, result)
		require.NoError(t, err)
	}
	_, err := svc.CompleteSession(ctx, session.ID)
	require.NoError(t, err)

	report, err := reports.BuildReport(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Stats.TotalEvents)
	assert.Equal(t, 3, report.Stats.FlaggedEvents) // low is below the default threshold
	assert.Equal(t, 3, report.Stats.TotalViolations)
	assert.InDelta(t, (0.6+0.8+0.9+0.9)/4, report.Stats.AverageConfidence, 1e-9)

	assert.Equal(t, 1, report.Stats.ViolationsBySeverity[models.SeverityMedium])
	assert.Equal(t, 2, report.Stats.ViolationsBySeverity[models.SeverityHigh])
	assert.Equal(t, 2, report.Stats.ViolationsByType[models.EventNoFace])
	assert.Equal(t, 1, report.Stats.ViolationsByType[models.EventObjectDetected])

	// Flagged counts across the severity map must add up to the total.
	sum := 0
	for _, n := range report.Stats.ViolationsBySeverity {
		sum += n
	}
	assert.Equal(t, report.Stats.TotalViolations, sum)

	assert.Len(t, report.Alerts, 2)
}

func TestBuildReport_OpenSessionDurationRunsToGenerationTime(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRepository()
	svc, _ := newServiceWithRepo(repo)
	ctx := context.Background()

	session := createActiveSession(t, svc, &CreateSessionRequest{StudentID: "student-1", ExamID: 7})
	stored, err := repo.Session().GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.StartedAt)

	// Still running; duration is measured against the generation time.
	generatedAt := stored.StartedAt.Add(10 * time.Minute)
	reports := &reportService{repo: repo, logger: logger, now: func() time.Time { return generatedAt }}

	report, err := reports.BuildReport(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, report.Stats.Duration)
}

func TestBuildReport_SessionNotFound(t *testing.T) {
	reports, _, _ := newReportFixture(t)

	_, err := reports.BuildReport(context.Background(), 999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRenderReport_UnknownFormatRejectedBeforeBuilding(t *testing.T) {
	reports, _, _ := newReportFixture(t)

	// Session 999 does not exist; the format error must win.
	_, err := reports.RenderReport(context.Background(), 999, ReportFormat("pdf"))
	assert.ErrorIs(t, err, ErrFormatNotSupported)
}

func TestRenderReport_DefaultsToJSON(t *testing.T) {
	reports, svc, _ := newReportFixture(t)
	ctx := context.Background()

	session := createActiveSession(t, svc, &CreateSessionRequest{StudentID: "student-1", ExamID: 7})

	rendered, err := reports.RenderReport(ctx, session.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ReportFormatJSON, rendered.Format)
	assert.Equal(t, "application/json", rendered.ContentType)

	var decoded SessionReport
	require.NoError(t, json.Unmarshal(rendered.Data, &decoded))
	assert.Equal(t, session.ID, decoded.Session.ID)
	assert.Equal(t, "student-1", decoded.Session.StudentID)
}

func TestRenderReport_Text(t *testing.T) {
	reports, svc, _ := newReportFixture(t)
	ctx := context.Background()

	session := createActiveSession(t, svc, &CreateSessionRequest{StudentID: "student-42", ExamID: 7})
	_, err := svc.RecordDetection(ctx, session.ID, detection.DetectionResult{
		EventType:  models.EventNoFace,
		Severity:   models.SeverityMedium,
		Confidence: 0.8,
	})
	require.NoError(t, err)
	_, err = svc.SendIntervention(ctx, session.ID, &SendInterventionRequest{
		Type:    models.InterventionWarning,
		Message: "Face the camera",
		SentBy:  "proctor-1",
	})
	require.NoError(t, err)
	_, err = svc.CompleteSession(ctx, session.ID)
	require.NoError(t, err)

	rendered, err := reports.RenderReport(ctx, session.ID, ReportFormatText)
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", rendered.ContentType)

	text := string(rendered.Data)
	assert.Contains(t, text, "Student:  student-42")
	assert.Contains(t, text, "Status:   completed")
	assert.Contains(t, text, "Violations:         1")
	assert.Contains(t, text, "Duration:")
	assert.Contains(t, text, "Violation timeline:")
	assert.Contains(t, text, string(models.EventNoFace))
	assert.Contains(t, text, "by proctor-1")
	assert.NotContains(t, text, "No violations detected")
}

func TestRenderReport_TextOpenCleanSession(t *testing.T) {
	reports, svc, _ := newReportFixture(t)
	ctx := context.Background()

	// Still active, nothing detected: the report says so explicitly and
	// carries a duration even though the session has no end time yet.
	session := createActiveSession(t, svc, &CreateSessionRequest{StudentID: "student-1", ExamID: 7})

	rendered, err := reports.RenderReport(ctx, session.ID, ReportFormatText)
	require.NoError(t, err)

	text := string(rendered.Data)
	assert.Contains(t, text, "Status:   active")
	assert.Contains(t, text, "Duration:")
	assert.Contains(t, text, "No violations detected")
	assert.NotContains(t, text, "Ended:")
}

func TestRenderReport_TextMarksAutomaticInterventions(t *testing.T) {
	reports, svc, _ := newReportFixture(t)
	ctx := context.Background()

	session := createActiveSession(t, svc, &CreateSessionRequest{
		StudentID: "student-1",
		ExamID:    7,
		Settings:  &SessionSettingsUpdate{AutoTerminate: ptr(true)},
	})
	_, err := svc.RecordDetection(ctx, session.ID, detection.DetectionResult{
		EventType:  models.EventMultipleFaces,
		Severity:   models.SeverityCritical,
		Confidence: 0.95,
	})
	require.NoError(t, err)

	rendered, err := reports.RenderReport(ctx, session.ID, ReportFormatText)
	require.NoError(t, err)
	assert.Contains(t, string(rendered.Data), "by auto")
}
