package handlers

import (
	"io"
	"net/http"

	"github.com/SAP-F-2025/proctoring-service/internal/services"
	"github.com/SAP-F-2025/proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type MonitoringHandler struct {
	BaseHandler
	monitoringService services.MonitoringService
	validator         *utils.Validator
}

func NewMonitoringHandler(
	monitoringService services.MonitoringService,
	validator *utils.Validator,
	logger utils.Logger,
) *MonitoringHandler {
	return &MonitoringHandler{
		BaseHandler:       NewBaseHandler(logger),
		monitoringService: monitoringService,
		validator:         validator,
	}
}

type acknowledgeAlertRequest struct {
	AcknowledgedBy string `json:"acknowledged_by" validate:"required"`
}

// GetExamSessions returns the live monitoring view for an exam
// @Summary Get monitored exam sessions
// @Tags monitoring
// @Produce json
// @Param exam_id path uint true "Exam ID"
// @Success 200 {array} services.MonitoredSession
// @Router /monitoring/exams/{exam_id}/sessions [get]
func (h *MonitoringHandler) GetExamSessions(c *gin.Context) {
	examID := h.parseIDParam(c, "exam_id")
	if examID == 0 {
		return
	}

	sessions, err := h.monitoringService.GetActiveExamSessions(c.Request.Context(), examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// GetPendingAlerts returns an exam's pending alerts, newest first
// @Summary Get pending alerts
// @Tags monitoring
// @Produce json
// @Param exam_id path uint true "Exam ID"
// @Success 200 {array} models.ProctoringAlert
// @Router /monitoring/exams/{exam_id}/alerts [get]
func (h *MonitoringHandler) GetPendingAlerts(c *gin.Context) {
	examID := h.parseIDParam(c, "exam_id")
	if examID == 0 {
		return
	}

	alerts, err := h.monitoringService.GetPendingAlerts(c.Request.Context(), examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, alerts)
}

// GetExamStats returns aggregate monitoring stats for an exam
// @Summary Get exam monitoring stats
// @Tags monitoring
// @Produce json
// @Param exam_id path uint true "Exam ID"
// @Success 200 {object} repositories.ExamMonitoringStats
// @Router /monitoring/exams/{exam_id}/stats [get]
func (h *MonitoringHandler) GetExamStats(c *gin.Context) {
	examID := h.parseIDParam(c, "exam_id")
	if examID == 0 {
		return
	}

	stats, err := h.monitoringService.GetExamStats(c.Request.Context(), examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// WatchExam streams monitoring updates for an exam as server-sent
// events until the client disconnects
// @Summary Watch exam sessions
// @Tags monitoring
// @Produce text/event-stream
// @Param exam_id path uint true "Exam ID"
// @Router /monitoring/exams/{exam_id}/watch [get]
func (h *MonitoringHandler) WatchExam(c *gin.Context) {
	examID := h.parseIDParam(c, "exam_id")
	if examID == 0 {
		return
	}

	h.LogRequest(c, "Monitoring watch started", "exam_id", examID)

	updates, err := h.monitoringService.Watch(c.Request.Context(), examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		update, ok := <-updates
		if !ok {
			return false
		}
		c.SSEvent("update", update)
		return true
	})
}

// AcknowledgeAlert marks an alert as seen by a teacher
// @Summary Acknowledge alert
// @Tags monitoring
// @Accept json
// @Produce json
// @Param id path uint true "Alert ID"
// @Success 200 {object} models.ProctoringAlert
// @Failure 404 {object} ErrorResponse
// @Router /monitoring/alerts/{id}/acknowledge [post]
func (h *MonitoringHandler) AcknowledgeAlert(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req acknowledgeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	alert, err := h.monitoringService.AcknowledgeAlert(c.Request.Context(), id, req.AcknowledgedBy)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

// ResolveAlert closes out an alert
// @Summary Resolve alert
// @Tags monitoring
// @Accept json
// @Produce json
// @Param id path uint true "Alert ID"
// @Param resolution body services.ResolveAlertRequest true "Resolution data"
// @Success 200 {object} models.ProctoringAlert
// @Failure 404 {object} ErrorResponse
// @Router /monitoring/alerts/{id}/resolve [post]
func (h *MonitoringHandler) ResolveAlert(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.ResolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	alert, err := h.monitoringService.ResolveAlert(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}
