package capture

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// recordingTypePreference is the descending preference list for the
// recording container; the first entry the platform supports wins.
var recordingTypePreference = []string{
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
	"video/mp4",
}

type RecordingOptions struct {
	// ChunkInterval is how often a frame is appended to the recording.
	ChunkInterval time.Duration
	MimeType      string // optional override; must be supported
}

// Recording is the finalized blob returned by StopRecording.
type Recording struct {
	MimeType  string
	Data      []byte
	StartedAt time.Time
	StoppedAt time.Time
}

// pickRecordingType chooses the best supported container, honoring an
// explicit override only when the platform actually supports it.
func pickRecordingType(supported []string, override string) string {
	supportedSet := make(map[string]bool, len(supported))
	for _, s := range supported {
		supportedSet[s] = true
	}
	if override != "" && supportedSet[override] {
		return override
	}
	for _, preferred := range recordingTypePreference {
		if supportedSet[preferred] {
			return preferred
		}
	}
	return ""
}

// recorder combines the currently active tracks into a single buffered
// recording by sampling frames on a fixed cadence.
type recorder struct {
	mimeType  string
	interval  time.Duration
	startedAt time.Time

	mu     sync.Mutex
	buf    bytes.Buffer
	cancel context.CancelFunc
	done   chan struct{}
}

func newRecorder(mimeType string, interval time.Duration) *recorder {
	if interval <= 0 {
		interval = time.Second
	}
	return &recorder{
		mimeType:  mimeType,
		interval:  interval,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

func (r *recorder) run(ctx context.Context, sources []VideoTrack) {
	ctx, r.cancel = context.WithCancel(ctx)
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.appendChunk(ctx, sources)
			}
		}
	}()
}

func (r *recorder) appendChunk(ctx context.Context, sources []VideoTrack) {
	for _, track := range sources {
		frame, err := track.Frame(ctx)
		if err != nil {
			continue
		}
		chunk, err := encodeSnapshot(frame.Image, SnapshotOptions{Format: SnapshotJPEG, Quality: 70})
		if err != nil {
			continue
		}
		r.mu.Lock()
		r.buf.Write(chunk)
		r.mu.Unlock()
	}
}

func (r *recorder) stop() *Recording {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Recording{
		MimeType:  r.mimeType,
		Data:      r.buf.Bytes(),
		StartedAt: r.startedAt,
		StoppedAt: time.Now(),
	}
}
