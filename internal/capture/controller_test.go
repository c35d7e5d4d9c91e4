package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== FAKE DEVICE BOUNDARY =====

type fakeVideoTrack struct {
	id   string
	kind StreamKind

	mu      sync.Mutex
	closed  bool
	frame   image.Image
	onEnded func()
}

func newFakeVideoTrack(id string, kind StreamKind) *fakeVideoTrack {
	return &fakeVideoTrack{id: id, kind: kind, frame: image.NewRGBA(image.Rect(0, 0, 8, 8))}
}

func (t *fakeVideoTrack) ID() string       { return t.id }
func (t *fakeVideoTrack) Kind() StreamKind { return t.kind }

func (t *fakeVideoTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeVideoTrack) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeVideoTrack) Frame(ctx context.Context) (detection.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return detection.Frame{}, errors.New("track closed")
	}
	return detection.Frame{Image: t.frame, CapturedAt: time.Now()}, nil
}

func (t *fakeVideoTrack) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = fn
}

// endByUser simulates the source stopping the track, e.g. the student
// clicking the browser's "stop sharing" button.
func (t *fakeVideoTrack) endByUser() {
	t.mu.Lock()
	fn := t.onEnded
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeAudioTrack struct {
	id     string
	level  float64
	closed bool
}

func (t *fakeAudioTrack) ID() string       { return t.id }
func (t *fakeAudioTrack) Kind() StreamKind { return StreamAudio }
func (t *fakeAudioTrack) Close() error     { t.closed = true; return nil }

func (t *fakeAudioTrack) Sample(ctx context.Context) (detection.AudioSample, error) {
	return detection.AudioSample{PCM: []byte{1, 2, 3, 4}, SampleRate: 16000, CapturedAt: time.Now()}, nil
}

func (t *fakeAudioTrack) Level(ctx context.Context) (float64, error) {
	return t.level, nil
}

type fakeDevices struct {
	probeErr       map[StreamKind]error
	openErr        error
	recordingTypes []string

	lastVideo  *fakeVideoTrack
	lastAudio  *fakeAudioTrack
	lastScreen *fakeVideoTrack
}

func (d *fakeDevices) Probe(ctx context.Context, kind StreamKind) error {
	return d.probeErr[kind]
}

func (d *fakeDevices) OpenVideo(ctx context.Context, c Constraints) (VideoTrack, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.lastVideo = newFakeVideoTrack("video-1", StreamVideo)
	return d.lastVideo, nil
}

func (d *fakeDevices) OpenAudio(ctx context.Context, c Constraints) (AudioTrack, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.lastAudio = &fakeAudioTrack{id: "audio-1", level: 0.5}
	return d.lastAudio, nil
}

func (d *fakeDevices) OpenScreen(ctx context.Context, c Constraints) (VideoTrack, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.lastScreen = newFakeVideoTrack("screen-1", StreamScreen)
	return d.lastScreen, nil
}

func (d *fakeDevices) SupportedRecordingTypes() []string {
	return d.recordingTypes
}

func newTestController(devices *fakeDevices) *Controller {
	return NewController(devices, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ===== PERMISSIONS =====

func TestRequestPermissions(t *testing.T) {
	ctx := context.Background()

	t.Run("granted", func(t *testing.T) {
		c := newTestController(&fakeDevices{})
		result := c.RequestPermissions(ctx, PermissionConfig{Video: true, Audio: true})
		assert.True(t, result.Granted)
		assert.Empty(t, result.Reason)
	})

	t.Run("camera denied surfaces remediation", func(t *testing.T) {
		devErr := &DeviceError{Kind: DevicePermissionDenied, Device: StreamVideo, Reason: "denied"}
		c := newTestController(&fakeDevices{
			probeErr: map[StreamKind]error{StreamVideo: devErr},
		})
		result := c.RequestPermissions(ctx, PermissionConfig{Video: true})
		assert.False(t, result.Granted)
		assert.Equal(t, devErr.Remediation(), result.Reason)
		assert.Contains(t, result.Reason, "denied")
	})

	t.Run("microphone missing surfaces remediation", func(t *testing.T) {
		devErr := &DeviceError{Kind: DeviceNotFound, Device: StreamAudio, Reason: "no mic"}
		c := newTestController(&fakeDevices{
			probeErr: map[StreamKind]error{StreamAudio: devErr},
		})
		result := c.RequestPermissions(ctx, PermissionConfig{Video: true, Audio: true})
		assert.False(t, result.Granted)
		assert.Contains(t, result.Reason, "No audio device was found")
	})

	t.Run("untyped failure gets the generic message", func(t *testing.T) {
		c := newTestController(&fakeDevices{
			probeErr: map[StreamKind]error{StreamVideo: errors.New("boom")},
		})
		result := c.RequestPermissions(ctx, PermissionConfig{Video: true})
		assert.False(t, result.Granted)
		assert.Contains(t, result.Reason, "media device error")
	})
}

// ===== SNAPSHOTS =====

func TestCaptureSnapshot(t *testing.T) {
	ctx := context.Background()
	devices := &fakeDevices{}
	c := newTestController(devices)

	// No video stream: snapshot loss is silent, never an error.
	assert.Nil(t, c.CaptureSnapshot(ctx, SnapshotOptions{}))

	require.NoError(t, c.StartVideoCapture(ctx, Constraints{}))
	data := c.CaptureSnapshot(ctx, SnapshotOptions{Format: SnapshotJPEG})
	require.NotEmpty(t, data)
	// JPEG SOI marker
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	pngData := c.CaptureSnapshot(ctx, SnapshotOptions{Format: SnapshotPNG})
	require.NotEmpty(t, pngData)
	assert.Equal(t, byte(0x89), pngData[0])
}

// ===== RECORDING =====

func TestStartRecording_RequiresStreamsAndFormat(t *testing.T) {
	ctx := context.Background()

	c := newTestController(&fakeDevices{recordingTypes: []string{"video/webm"}})
	assert.ErrorIs(t, c.StartRecording(ctx, RecordingOptions{}), ErrNoActiveStreams)

	devices := &fakeDevices{} // platform supports nothing
	c = newTestController(devices)
	require.NoError(t, c.StartVideoCapture(ctx, Constraints{}))
	assert.ErrorIs(t, c.StartRecording(ctx, RecordingOptions{}), ErrNoSupportedFormat)
	c.StopAllCaptures()
}

func TestStartRecording_OnceThenStop(t *testing.T) {
	ctx := context.Background()
	devices := &fakeDevices{recordingTypes: []string{"video/webm"}}
	c := newTestController(devices)
	defer c.StopAllCaptures()

	require.NoError(t, c.StartVideoCapture(ctx, Constraints{}))
	require.NoError(t, c.StartRecording(ctx, RecordingOptions{ChunkInterval: 5 * time.Millisecond}))
	assert.ErrorIs(t, c.StartRecording(ctx, RecordingOptions{}), ErrAlreadyRecording)

	time.Sleep(50 * time.Millisecond)

	recording := c.StopRecording()
	require.NotNil(t, recording)
	assert.Equal(t, "video/webm", recording.MimeType)
	assert.NotEmpty(t, recording.Data)
	assert.False(t, recording.StoppedAt.Before(recording.StartedAt))

	// Nothing is recording anymore.
	assert.Nil(t, c.StopRecording())
}

func TestPickRecordingType(t *testing.T) {
	supported := []string{"video/mp4", "video/webm;codecs=vp8,opus"}

	// Preference order wins over the platform's listing order.
	assert.Equal(t, "video/webm;codecs=vp8,opus", pickRecordingType(supported, ""))

	// An explicit override is honored when supported.
	assert.Equal(t, "video/mp4", pickRecordingType(supported, "video/mp4"))

	// An unsupported override falls back to the preference list.
	assert.Equal(t, "video/webm;codecs=vp8,opus", pickRecordingType(supported, "video/ogg"))

	assert.Empty(t, pickRecordingType(nil, ""))
}

// ===== SCREEN SHARING =====

func TestScreenCapture_UserStopClearsTrack(t *testing.T) {
	ctx := context.Background()
	devices := &fakeDevices{recordingTypes: []string{"video/webm"}}
	c := newTestController(devices)
	defer c.StopAllCaptures()

	require.NoError(t, c.StartScreenCapture(ctx, Constraints{}))
	track := devices.lastScreen
	require.NotNil(t, track)

	track.endByUser()
	assert.True(t, track.isClosed())

	// With the screen gone and nothing else open, recording has no input.
	assert.ErrorIs(t, c.StartRecording(ctx, RecordingOptions{}), ErrNoActiveStreams)
}

func TestStartVideoCapture_ReplacesPreviousTrack(t *testing.T) {
	ctx := context.Background()
	devices := &fakeDevices{}
	c := newTestController(devices)
	defer c.StopAllCaptures()

	require.NoError(t, c.StartVideoCapture(ctx, Constraints{}))
	old := devices.lastVideo
	require.NoError(t, c.StartVideoCapture(ctx, Constraints{}))

	assert.True(t, old.isClosed())
	assert.False(t, devices.lastVideo.isClosed())
}

// ===== FRAME SOURCE =====

func TestControllerAsFrameSource(t *testing.T) {
	ctx := context.Background()
	devices := &fakeDevices{}
	c := newTestController(devices)

	_, err := c.VideoFrame(ctx)
	assert.ErrorIs(t, err, ErrNoVideoStream)
	_, err = c.AudioSample(ctx)
	assert.ErrorIs(t, err, ErrNoAudioStream)

	require.NoError(t, c.StartVideoCapture(ctx, Constraints{}))
	require.NoError(t, c.StartAudioCapture(ctx, Constraints{}))

	frame, err := c.VideoFrame(ctx)
	require.NoError(t, err)
	assert.NotNil(t, frame.Image)

	sample, err := c.AudioSample(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16000, sample.SampleRate)

	c.StopAllCaptures()
	_, err = c.VideoFrame(ctx)
	assert.ErrorIs(t, err, ErrNoVideoStream)
}

// ===== AUDIO LEVEL MONITORING =====

func TestStartAudioLevelMonitoring(t *testing.T) {
	ctx := context.Background()
	devices := &fakeDevices{}
	c := newTestController(devices)
	defer c.StopAllCaptures()

	_, err := c.StartAudioLevelMonitoring(ctx, func(float64) {}, time.Millisecond)
	assert.ErrorIs(t, err, ErrNoAudioStream)

	require.NoError(t, c.StartAudioCapture(ctx, Constraints{}))
	devices.lastAudio.level = 1.7 // out of range, must be clamped

	levels := make(chan float64, 1)
	cancel, err := c.StartAudioLevelMonitoring(ctx, func(level float64) {
		select {
		case levels <- level:
		default:
		}
	}, time.Millisecond)
	require.NoError(t, err)
	defer cancel()

	select {
	case level := <-levels:
		assert.InDelta(t, 1.0, level, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no audio level callback")
	}
}

// ===== TEARDOWN =====

func TestStopAllCaptures_Idempotent(t *testing.T) {
	ctx := context.Background()
	devices := &fakeDevices{recordingTypes: []string{"video/webm"}}
	c := newTestController(devices)

	require.NoError(t, c.StartVideoCapture(ctx, Constraints{}))
	require.NoError(t, c.StartAudioCapture(ctx, Constraints{}))
	require.NoError(t, c.StartScreenCapture(ctx, Constraints{}))
	require.NoError(t, c.StartRecording(ctx, RecordingOptions{ChunkInterval: time.Millisecond}))

	c.StopAllCaptures()
	c.StopAllCaptures() // second call must be a clean no-op

	assert.True(t, devices.lastVideo.isClosed())
	assert.True(t, devices.lastAudio.closed)
	assert.True(t, devices.lastScreen.isClosed())
	assert.Nil(t, c.StopRecording())
}
