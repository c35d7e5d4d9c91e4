package detection

import (
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

// DetectionResult is what the engine emits to subscribers once a check
// crosses its reporting policy.
type DetectionResult struct {
	Timestamp     time.Time                  `json:"timestamp"`
	EventType     models.ProctoringEventType `json:"event_type"`
	Severity      models.Severity            `json:"severity"`
	Confidence    float64                    `json:"confidence"`
	Details       map[string]interface{}     `json:"details,omitempty"`
	RequiresAlert bool                       `json:"requires_alert"`
}
