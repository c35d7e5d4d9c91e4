package handlers

import (
	"github.com/SAP-F-2025/proctoring-service/internal/services"
	"github.com/SAP-F-2025/proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	sessionHandler    *SessionHandler
	monitoringHandler *MonitoringHandler
	reportHandler     *ReportHandler
}

func NewHandlerManager(
	proctoringService services.ProctoringService,
	monitoringService services.MonitoringService,
	reportService services.ReportService,
	validator *utils.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler:    NewSessionHandler(proctoringService, validator, logger),
		monitoringHandler: NewMonitoringHandler(monitoringService, validator, logger),
		reportHandler:     NewReportHandler(reportService, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Session routes
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.CreateSession)
			sessions.GET("", hm.sessionHandler.ListSessions)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.POST("/:id/activate", hm.sessionHandler.ActivateSession)
			sessions.POST("/:id/complete", hm.sessionHandler.CompleteSession)

			// Detection flow
			sessions.POST("/:id/detections", hm.sessionHandler.RecordDetection)
			sessions.POST("/:id/chunks", hm.sessionHandler.ProcessStreamChunk)

			// Interventions and history
			sessions.POST("/:id/interventions", hm.sessionHandler.SendIntervention)
			sessions.GET("/:id/events", hm.sessionHandler.GetSessionEvents)
			sessions.GET("/:id/violations", hm.sessionHandler.GetSessionViolations)
		}

		// Violation review
		violations := v1.Group("/violations")
		{
			violations.POST("/:id/review", hm.sessionHandler.ReviewViolation)
		}

		// Live monitoring routes
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/exams/:exam_id/sessions", hm.monitoringHandler.GetExamSessions)
			monitoring.GET("/exams/:exam_id/alerts", hm.monitoringHandler.GetPendingAlerts)
			monitoring.GET("/exams/:exam_id/stats", hm.monitoringHandler.GetExamStats)
			monitoring.GET("/exams/:exam_id/watch", hm.monitoringHandler.WatchExam)

			monitoring.POST("/alerts/:id/acknowledge", hm.monitoringHandler.AcknowledgeAlert)
			monitoring.POST("/alerts/:id/resolve", hm.monitoringHandler.ResolveAlert)
		}

		// Report routes
		reports := v1.Group("/reports")
		{
			reports.GET("/sessions/:id", hm.reportHandler.GetSessionReport)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "proctoring-service",
		})
	})
}
