package detection

import (
	"testing"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func testConfig() Config {
	return Config{
		MaxNoFaceDuration:     10 * time.Second,
		MaxLookAwayDuration:   10 * time.Second,
		EscalationDuration:    20 * time.Second,
		BlockedObjects:        []string{"cell phone", "book"},
		ConversationThreshold: 0.5,
	}
}

func TestDurationMonitor_GracePeriodSuppressesShortEpisodes(t *testing.T) {
	m := newFaceMonitor(testConfig())
	start := time.Now()

	// Condition active but still inside the grace period.
	assert.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.9}, start))
	assert.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.9}, start.Add(5*time.Second)))
	assert.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.9}, start.Add(10*time.Second)))

	// Recovery before the grace period expires: nothing was ever emitted.
	assert.Nil(t, m.observe(FaceAnalysis{Count: 1, Confidence: 0.9}, start.Add(11*time.Second)))
	assert.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.9}, start.Add(12*time.Second)))
	assert.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.9}, start.Add(20*time.Second)))
}

func TestDurationMonitor_EscalatesOncePerTier(t *testing.T) {
	m := newFaceMonitor(testConfig())
	start := time.Now()

	require.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start))

	// Past grace: exactly one medium event.
	result := m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start.Add(11*time.Second))
	require.NotNil(t, result)
	assert.Equal(t, models.EventNoFace, result.EventType)
	assert.Equal(t, models.SeverityMedium, result.Severity)
	assert.False(t, result.RequiresAlert)

	// Still medium: no repeat.
	assert.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start.Add(15*time.Second)))
	assert.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start.Add(29*time.Second)))

	// Past grace+escalation: exactly one high event, which alerts.
	result = m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start.Add(31*time.Second))
	require.NotNil(t, result)
	assert.Equal(t, models.SeverityHigh, result.Severity)
	assert.True(t, result.RequiresAlert)

	assert.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start.Add(60*time.Second)))
}

func TestDurationMonitor_RecoveryStartsNewEpisode(t *testing.T) {
	m := newFaceMonitor(testConfig())
	start := time.Now()

	require.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start))
	require.NotNil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start.Add(11*time.Second)))

	// Face returns; the episode resets.
	assert.Nil(t, m.observe(FaceAnalysis{Count: 1, Confidence: 0.8}, start.Add(12*time.Second)))

	// A new episode escalates from scratch, starting with medium again.
	second := start.Add(20 * time.Second)
	require.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, second))
	assert.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, second.Add(9*time.Second)))

	result := m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, second.Add(11*time.Second))
	require.NotNil(t, result)
	assert.Equal(t, models.SeverityMedium, result.Severity)
}

func TestFaceMonitor_MultipleFacesFireImmediately(t *testing.T) {
	m := newFaceMonitor(testConfig())
	start := time.Now()

	result := m.observe(FaceAnalysis{Count: 2, Confidence: 0.95}, start)
	require.NotNil(t, result)
	assert.Equal(t, models.EventMultipleFaces, result.EventType)
	assert.Equal(t, models.SeverityCritical, result.Severity)
	assert.True(t, result.RequiresAlert)
	assert.Equal(t, 2, result.Details["face_count"])

	// Held condition does not repeat.
	assert.Nil(t, m.observe(FaceAnalysis{Count: 2, Confidence: 0.95}, start.Add(2*time.Second)))
	assert.Nil(t, m.observe(FaceAnalysis{Count: 3, Confidence: 0.95}, start.Add(4*time.Second)))

	// Back to one face, then multiple again: a new episode fires.
	assert.Nil(t, m.observe(FaceAnalysis{Count: 1, Confidence: 0.95}, start.Add(6*time.Second)))
	result = m.observe(FaceAnalysis{Count: 2, Confidence: 0.95}, start.Add(8*time.Second))
	require.NotNil(t, result)
	assert.Equal(t, models.SeverityCritical, result.Severity)
}

func TestFaceMonitor_MultipleFacesResetNoFaceEpisode(t *testing.T) {
	m := newFaceMonitor(testConfig())
	start := time.Now()

	// No face for a while, then two faces appear: the no-face episode
	// must not continue counting through the multi-face period.
	require.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start))
	require.NotNil(t, m.observe(FaceAnalysis{Count: 2, Confidence: 0.9}, start.Add(8*time.Second)))

	require.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start.Add(10*time.Second)))
	// Only 9s into the new no-face episode: still inside grace.
	assert.Nil(t, m.observe(FaceAnalysis{Count: 0, Confidence: 0.8}, start.Add(19*time.Second)))
}

func TestGazeMonitor_SustainedLookAway(t *testing.T) {
	m := newGazeMonitor(testConfig())
	start := time.Now()

	assert.Nil(t, m.observe(GazeAnalysis{LookingAway: true, Confidence: 0.7}, start))
	assert.Nil(t, m.observe(GazeAnalysis{LookingAway: true, Confidence: 0.7}, start.Add(9*time.Second)))

	result := m.observe(GazeAnalysis{LookingAway: true, Confidence: 0.7}, start.Add(12*time.Second))
	require.NotNil(t, result)
	assert.Equal(t, models.EventLookingAway, result.EventType)
	assert.Equal(t, models.SeverityMedium, result.Severity)
}

func TestObjectMonitor_BlockedObjectAlertsOncePerAppearance(t *testing.T) {
	m := newObjectMonitor(testConfig())
	start := time.Now()

	phone := ObjectAnalysis{Objects: []DetectedObject{{Label: "Cell Phone", Confidence: 0.9}}}

	result := m.observe(phone, 0.6, start)
	require.NotNil(t, result)
	assert.Equal(t, models.EventObjectDetected, result.EventType)
	assert.Equal(t, models.SeverityHigh, result.Severity)
	assert.True(t, result.RequiresAlert)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)

	// Same appearance: no repeat.
	assert.Nil(t, m.observe(phone, 0.6, start.Add(5*time.Second)))

	// Object leaves, then comes back: new event.
	assert.Nil(t, m.observe(ObjectAnalysis{}, 0.6, start.Add(10*time.Second)))
	assert.NotNil(t, m.observe(phone, 0.6, start.Add(15*time.Second)))
}

func TestObjectMonitor_IgnoresLowConfidenceAndUnblockedLabels(t *testing.T) {
	m := newObjectMonitor(testConfig())
	at := time.Now()

	// Below the confidence threshold.
	assert.Nil(t, m.observe(ObjectAnalysis{
		Objects: []DetectedObject{{Label: "cell phone", Confidence: 0.4}},
	}, 0.6, at))

	// Not on the blocked list.
	assert.Nil(t, m.observe(ObjectAnalysis{
		Objects: []DetectedObject{{Label: "coffee mug", Confidence: 0.95}},
	}, 0.6, at))
}

func TestAudioMonitor_ConversationAlertsUnusualVolumeDoesNot(t *testing.T) {
	m := newAudioMonitor(testConfig())
	at := time.Now()

	// Two voices: high severity, alert.
	result := m.observe(AudioAnalysis{VoiceCount: 2, Confidence: 0.8}, at)
	require.NotNil(t, result)
	assert.Equal(t, models.EventAudioConversation, result.EventType)
	assert.Equal(t, models.SeverityHigh, result.Severity)
	assert.True(t, result.RequiresAlert)

	// Sustained conversation: one event only.
	assert.Nil(t, m.observe(AudioAnalysis{VoiceCount: 2, Confidence: 0.8}, at.Add(3*time.Second)))

	// Back to one voice but loud: medium, never alerts on its own.
	result = m.observe(AudioAnalysis{VoiceCount: 1, AverageVolume: 0.8, Confidence: 0.7}, at.Add(6*time.Second))
	require.NotNil(t, result)
	assert.Equal(t, models.EventAudioUnusual, result.EventType)
	assert.Equal(t, models.SeverityMedium, result.Severity)
	assert.False(t, result.RequiresAlert)

	// Still loud: no repeat. Quiet resets the episode.
	assert.Nil(t, m.observe(AudioAnalysis{VoiceCount: 1, AverageVolume: 0.9, Confidence: 0.7}, at.Add(9*time.Second)))
	assert.Nil(t, m.observe(AudioAnalysis{VoiceCount: 1, AverageVolume: 0.1, Confidence: 0.7}, at.Add(12*time.Second)))
	assert.NotNil(t, m.observe(AudioAnalysis{VoiceCount: 1, AverageVolume: 0.8, Confidence: 0.7}, at.Add(15*time.Second)))
}

func TestConfigFromSettings_MapsThresholds(t *testing.T) {
	settings := &models.ProctoringSettings{
		FaceDetectionEnabled:  true,
		AudioDetectionEnabled: false,
		FaceCheckInterval:     4,
		MaxNoFaceDuration:     15,
		EscalationDuration:    30,
		ConfidenceThreshold:   0.75,
		ConversationThreshold: 0.4,
		BlockedObjects:        datatypes.JSON(`["cell phone","calculator"]`),
	}

	cfg := ConfigFromSettings(settings)
	assert.True(t, cfg.Face.Enabled)
	assert.False(t, cfg.Audio.Enabled)
	assert.Equal(t, 4*time.Second, cfg.Face.Interval)
	assert.Equal(t, 15*time.Second, cfg.MaxNoFaceDuration)
	assert.Equal(t, 30*time.Second, cfg.EscalationDuration)
	assert.InDelta(t, 0.75, cfg.Face.ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 0.4, cfg.ConversationThreshold, 1e-9)
	assert.Equal(t, []string{"cell phone", "calculator"}, cfg.BlockedObjects)
}
