package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/detection"
	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/proctoring-service/internal/services"
	"github.com/SAP-F-2025/proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	BaseHandler
	proctoringService services.ProctoringService
	validator         *utils.Validator
}

func NewSessionHandler(
	proctoringService services.ProctoringService,
	validator *utils.Validator,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:       NewBaseHandler(logger),
		proctoringService: proctoringService,
		validator:         validator,
	}
}

// RecordDetectionRequest is what detection workers and the exam client
// post; client-side signals such as tab switches arrive here too.
type RecordDetectionRequest struct {
	EventType     models.ProctoringEventType `json:"event_type" validate:"required"`
	Severity      models.Severity            `json:"severity" validate:"required,severity"`
	Confidence    float64                    `json:"confidence" validate:"min=0,max=1"`
	Details       map[string]interface{}     `json:"details,omitempty"`
	RequiresAlert bool                       `json:"requires_alert"`
	DetectedAt    *time.Time                 `json:"detected_at,omitempty"`
}

// CreateSession creates a new proctoring session in pending state
// @Summary Create proctoring session
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body services.CreateSessionRequest true "Session data"
// @Success 201 {object} models.ProctoringSession
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	session, err := h.proctoringService.CreateSession(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession retrieves a session with its settings
// @Summary Get proctoring session
// @Tags sessions
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {object} models.ProctoringSession
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	session, err := h.proctoringService.GetSession(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ListSessions lists sessions with filters
// @Summary List proctoring sessions
// @Tags sessions
// @Produce json
// @Success 200 {object} services.SessionListResponse
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	filters := parseSessionFilters(c)

	response, err := h.proctoringService.ListSessions(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ActivateSession starts a pending session or resumes a paused one
// @Summary Activate proctoring session
// @Tags sessions
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {object} models.ProctoringSession
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/activate [post]
func (h *SessionHandler) ActivateSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Activating proctoring session", "session_id", id)

	session, err := h.proctoringService.ActivateSession(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// CompleteSession completes a running session
// @Summary Complete proctoring session
// @Tags sessions
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {object} models.ProctoringSession
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/complete [post]
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Completing proctoring session", "session_id", id)

	session, err := h.proctoringService.CompleteSession(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// RecordDetection records one detection outcome against a session
// @Summary Record detection
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path uint true "Session ID"
// @Param detection body RecordDetectionRequest true "Detection data"
// @Success 201 {object} services.DetectionOutcome
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/detections [post]
func (h *SessionHandler) RecordDetection(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req RecordDetectionRequest
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

	result := detection.DetectionResult{
		EventType:     req.EventType,
		Severity:      req.Severity,
		Confidence:    req.Confidence,
		Details:       req.Details,
		RequiresAlert: req.RequiresAlert,
	}
	if req.DetectedAt != nil {
		result.Timestamp = *req.DetectedAt
	}

	outcome, err := h.proctoringService.RecordDetection(c.Request.Context(), id, result)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, outcome)
}

// ProcessStreamChunk acknowledges a media chunk upload
// @Summary Process stream chunk
// @Tags sessions
// @Accept json
// @Param id path uint true "Session ID"
// @Param chunk body services.StreamChunk true "Chunk metadata"
// @Success 204
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/chunks [post]
func (h *SessionHandler) ProcessStreamChunk(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var chunk services.StreamChunk
	if err := c.ShouldBindJSON(&chunk); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.proctoringService.ProcessStreamChunk(c.Request.Context(), id, chunk); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SendIntervention sends a teacher intervention to a session
// @Summary Send intervention
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path uint true "Session ID"
// @Param intervention body services.SendInterventionRequest true "Intervention data"
// @Success 201 {object} models.ProctoringIntervention
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/interventions [post]
func (h *SessionHandler) SendIntervention(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.SendInterventionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Sending intervention",
		"session_id", id, "type", req.Type, "sent_by", req.SentBy)

	intervention, err := h.proctoringService.SendIntervention(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, intervention)
}

// GetSessionEvents returns the ordered event timeline of a session
// @Summary Get session events
// @Tags sessions
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {array} models.ProctoringEvent
// @Router /sessions/{id}/events [get]
func (h *SessionHandler) GetSessionEvents(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	eventList, err := h.proctoringService.GetSessionEvents(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, eventList)
}

// GetSessionViolations returns the session's violations
// @Summary Get session violations
// @Tags sessions
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {array} models.ProctoringViolation
// @Router /sessions/{id}/violations [get]
func (h *SessionHandler) GetSessionViolations(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	violations, err := h.proctoringService.GetSessionViolations(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, violations)
}

// ReviewViolation annotates a violation with a reviewer decision
// @Summary Review violation
// @Tags violations
// @Accept json
// @Produce json
// @Param id path uint true "Violation ID"
// @Param review body services.ReviewViolationRequest true "Review data"
// @Success 200 {object} models.ProctoringViolation
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /violations/{id}/review [post]
func (h *SessionHandler) ReviewViolation(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.ReviewViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	violation, err := h.proctoringService.ReviewViolation(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, violation)
}

// parseSessionFilters builds the repository filters from query params.
func parseSessionFilters(c *gin.Context) repositories.SessionFilters {
	filters := repositories.SessionFilters{
		Limit:     20,
		SortBy:    "created_at",
		SortOrder: "desc",
	}

	if examIDStr := c.Query("exam_id"); examIDStr != "" {
		if examID, err := strconv.ParseUint(examIDStr, 10, 32); err == nil {
			id := uint(examID)
			filters.ExamID = &id
		}
	}
	if studentID := c.Query("student_id"); studentID != "" {
		filters.StudentID = &studentID
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := models.SessionStatus(statusStr)
		filters.Status = &status
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filters.Limit = limit
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}
	if sortBy := c.Query("sort_by"); sortBy != "" {
		filters.SortBy = sortBy
	}
	if sortOrder := c.Query("sort_order"); sortOrder == "asc" || sortOrder == "desc" {
		filters.SortOrder = sortOrder
	}

	return filters
}
