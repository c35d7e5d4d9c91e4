package handlers

import (
	"fmt"
	"net/http"

	"github.com/SAP-F-2025/proctoring-service/internal/services"
	"github.com/SAP-F-2025/proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	BaseHandler
	reportService services.ReportService
}

func NewReportHandler(reportService services.ReportService, logger utils.Logger) *ReportHandler {
	return &ReportHandler{
		BaseHandler:   NewBaseHandler(logger),
		reportService: reportService,
	}
}

// GetSessionReport renders the post-exam report for one session
// @Summary Get session report
// @Tags reports
// @Produce json
// @Produce text/plain
// @Param id path uint true "Session ID"
// @Param format query string false "Report format (json or text)" default(json)
// @Success 200
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /reports/sessions/{id} [get]
func (h *ReportHandler) GetSessionReport(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	format := services.ReportFormat(c.DefaultQuery("format", "json"))

	h.LogRequest(c, "Generating session report", "session_id", id, "format", format)

	rendered, err := h.reportService.RenderReport(c.Request.Context(), id, format)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if c.Query("download") == "true" {
		filename := fmt.Sprintf("proctoring-report-%d.%s", id, fileExtension(rendered.Format))
		c.Header("Content-Disposition", "attachment; filename="+filename)
	}
	c.Data(http.StatusOK, rendered.ContentType, rendered.Data)
}

func fileExtension(format services.ReportFormat) string {
	if format == services.ReportFormatText {
		return "txt"
	}
	return "json"
}
