package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/detection"
)

var (
	ErrNoActiveStreams   = errors.New("no active streams to record")
	ErrNoSupportedFormat = errors.New("no supported recording format")
	ErrNoVideoStream     = errors.New("no active video stream")
	ErrNoAudioStream     = errors.New("no active audio stream")
	ErrAlreadyRecording  = errors.New("recording already in progress")
)

type PermissionConfig struct {
	Video bool
	Audio bool
}

type PermissionResult struct {
	Granted bool
	Reason  string
}

// Controller owns the media streams for exactly one proctoring session.
// It is constructed per session and disposed with StopAllCaptures so
// device handles never leak across sessions. It contains no detection
// logic; it implements detection.FrameSource for the engine.
type Controller struct {
	devices MediaDevices
	logger  *slog.Logger

	mu          sync.Mutex
	video       VideoTrack
	audio       AudioTrack
	screen      VideoTrack
	rec         *recorder
	levelCancel context.CancelFunc
}

func NewController(devices MediaDevices, logger *slog.Logger) *Controller {
	return &Controller{devices: devices, logger: logger}
}

// RequestPermissions probes the requested devices with a test stream
// that is released immediately. It never returns an error; failures are
// reported as a human-readable reason.
func (c *Controller) RequestPermissions(ctx context.Context, cfg PermissionConfig) PermissionResult {
	if cfg.Video {
		if err := c.devices.Probe(ctx, StreamVideo); err != nil {
			return PermissionResult{Granted: false, Reason: remediationFor(err)}
		}
	}
	if cfg.Audio {
		if err := c.devices.Probe(ctx, StreamAudio); err != nil {
			return PermissionResult{Granted: false, Reason: remediationFor(err)}
		}
	}
	return PermissionResult{Granted: true}
}

func remediationFor(err error) string {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Remediation()
	}
	return "A media device error occurred. Please check your devices and try again."
}

func (c *Controller) StartVideoCapture(ctx context.Context, constraints Constraints) error {
	track, err := c.devices.OpenVideo(ctx, constraints)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video != nil {
		c.video.Close()
	}
	c.video = track
	c.logger.Info("Video capture started", "track_id", track.ID())
	return nil
}

func (c *Controller) StartAudioCapture(ctx context.Context, constraints Constraints) error {
	track, err := c.devices.OpenAudio(ctx, constraints)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio != nil {
		c.audio.Close()
	}
	c.audio = track
	c.logger.Info("Audio capture started", "track_id", track.ID())
	return nil
}

// StartScreenCapture opens the screen stream and registers the
// user-stopped-sharing observer that tears the track down again.
func (c *Controller) StartScreenCapture(ctx context.Context, constraints Constraints) error {
	track, err := c.devices.OpenScreen(ctx, constraints)
	if err != nil {
		return err
	}
	track.OnEnded(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.screen == track {
			c.screen.Close()
			c.screen = nil
			c.logger.Info("Screen capture ended by user")
		}
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != nil {
		c.screen.Close()
	}
	c.screen = track
	c.logger.Info("Screen capture started", "track_id", track.ID())
	return nil
}

// CaptureSnapshot renders the current video frame to an encoded image.
// It returns nil on any failure; snapshot loss is never allowed to take
// a session down.
func (c *Controller) CaptureSnapshot(ctx context.Context, opts SnapshotOptions) []byte {
	c.mu.Lock()
	track := c.video
	c.mu.Unlock()
	if track == nil {
		return nil
	}
	frame, err := track.Frame(ctx)
	if err != nil || frame.Image == nil {
		return nil
	}
	data, err := encodeSnapshot(frame.Image, opts)
	if err != nil {
		c.logger.Warn("Snapshot encoding failed", "error", err)
		return nil
	}
	return data
}

// StartRecording combines all currently active video-bearing tracks
// into one recording using the best supported container.
func (c *Controller) StartRecording(ctx context.Context, opts RecordingOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil {
		return ErrAlreadyRecording
	}
	var sources []VideoTrack
	if c.video != nil {
		sources = append(sources, c.video)
	}
	if c.screen != nil {
		sources = append(sources, c.screen)
	}
	if len(sources) == 0 && c.audio == nil {
		return ErrNoActiveStreams
	}
	mimeType := pickRecordingType(c.devices.SupportedRecordingTypes(), opts.MimeType)
	if mimeType == "" {
		return ErrNoSupportedFormat
	}
	c.rec = newRecorder(mimeType, opts.ChunkInterval)
	c.rec.run(ctx, sources)
	c.logger.Info("Recording started", "mime_type", mimeType, "sources", len(sources))
	return nil
}

// StopRecording finalizes and returns the recorded blob, or nil when
// nothing was recording.
func (c *Controller) StopRecording() *Recording {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()
	if rec == nil {
		return nil
	}
	recording := rec.stop()
	c.logger.Info("Recording stopped", "bytes", len(recording.Data))
	return recording
}

// StartAudioLevelMonitoring invokes cb with a normalized 0-1 level on a
// fixed cadence and returns the cancellation function.
func (c *Controller) StartAudioLevelMonitoring(ctx context.Context, cb func(level float64), interval time.Duration) (func(), error) {
	c.mu.Lock()
	track := c.audio
	c.mu.Unlock()
	if track == nil {
		return nil, ErrNoAudioStream
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	monCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.levelCancel != nil {
		c.levelCancel()
	}
	c.levelCancel = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monCtx.Done():
				return
			case <-ticker.C:
				level, err := track.Level(monCtx)
				if err != nil {
					continue
				}
				cb(clamp01(level))
			}
		}
	}()
	return cancel, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// StopAllCaptures releases every stream, monitor and recording. It is
// idempotent and callable from any state.
func (c *Controller) StopAllCaptures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.levelCancel != nil {
		c.levelCancel()
		c.levelCancel = nil
	}
	if c.rec != nil {
		c.rec.stop()
		c.rec = nil
	}
	if c.video != nil {
		c.video.Close()
		c.video = nil
	}
	if c.audio != nil {
		c.audio.Close()
		c.audio = nil
	}
	if c.screen != nil {
		c.screen.Close()
		c.screen = nil
	}
}

// ===== detection.FrameSource =====

func (c *Controller) VideoFrame(ctx context.Context) (detection.Frame, error) {
	c.mu.Lock()
	track := c.video
	c.mu.Unlock()
	if track == nil {
		return detection.Frame{}, ErrNoVideoStream
	}
	return track.Frame(ctx)
}

func (c *Controller) AudioSample(ctx context.Context) (detection.AudioSample, error) {
	c.mu.Lock()
	track := c.audio
	c.mu.Unlock()
	if track == nil {
		return detection.AudioSample{}, ErrNoAudioStream
	}
	return track.Sample(ctx)
}
