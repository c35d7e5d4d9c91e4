package detection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrAlreadyRunning = errors.New("detection engine already running")

// Engine schedules one periodic check per enabled modality and turns
// raw detector answers into DetectionResults via the escalation
// monitors. Each modality runs on its own goroutine, so a modality is
// never concurrent with itself; an error or panic inside one tick is
// logged and the schedule continues.
type Engine struct {
	detector Detector
	source   FrameSource
	logger   *slog.Logger

	mu      sync.Mutex
	cfg     Config
	running bool
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	subMu   sync.RWMutex
	subs    map[int]func(DetectionResult)
	nextSub int

	face   *faceMonitor
	object *objectMonitor
	gaze   *gazeMonitor
	audio  *audioMonitor

	now func() time.Time
}

func NewEngine(detector Detector, source FrameSource, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		detector: detector,
		source:   source,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		subs:     make(map[int]func(DetectionResult)),
		now:      time.Now,
	}
}

// Subscribe registers a callback for every emitted result and returns
// its unsubscribe function. A panicking subscriber is isolated; the
// others still receive the result.
func (e *Engine) Subscribe(fn func(DetectionResult)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.stopCh = make(chan struct{})
	e.running = true

	e.face = newFaceMonitor(e.cfg)
	e.object = newObjectMonitor(e.cfg)
	e.gaze = newGazeMonitor(e.cfg)
	e.audio = newAudioMonitor(e.cfg)

	type loop struct {
		name     string
		modality ModalityConfig
		tick     func(context.Context, time.Time)
	}
	loops := []loop{
		{"face", e.cfg.Face, e.faceTick},
		{"object", e.cfg.Object, e.objectTick},
		{"gaze", e.cfg.Gaze, e.gazeTick},
		{"audio", e.cfg.Audio, e.audioTick},
	}
	for _, l := range loops {
		if !l.modality.Enabled {
			continue
		}
		e.wg.Add(1)
		go e.runLoop(runCtx, l.name, l.modality.Interval, l.tick)
	}

	e.logger.Info("Detection engine started",
		"face_interval", e.cfg.Face.Interval,
		"object_interval", e.cfg.Object.Interval,
		"gaze_interval", e.cfg.Gaze.Interval,
		"audio_interval", e.cfg.Audio.Interval)
	return nil
}

// Stop cancels every scheduled check and waits for in-flight ticks to
// finish. Safe to call from any state, any number of times. Results
// produced by ticks that were already running are discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("Detection engine stopped")
}

// UpdateConfig stops the schedule, merges the new settings over the
// defaults, and restarts with fresh monitor state.
func (e *Engine) UpdateConfig(ctx context.Context, cfg Config) error {
	e.mu.Lock()
	wasRunning := e.running
	e.mu.Unlock()

	e.Stop()

	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()

	if wasRunning {
		return e.Start(ctx)
	}
	return nil
}

func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) runLoop(ctx context.Context, name string, interval time.Duration, tick func(context.Context, time.Time)) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.safeTick(ctx, name, tick)
		}
	}
}

func (e *Engine) safeTick(ctx context.Context, name string, tick func(context.Context, time.Time)) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Detector tick panicked", "modality", name, "panic", r)
		}
	}()
	tick(ctx, e.now())
}

func (e *Engine) faceTick(ctx context.Context, at time.Time) {
	frame, err := e.source.VideoFrame(ctx)
	if err != nil {
		e.logger.Warn("Face tick: no video frame", "error", err)
		return
	}
	analysis, err := e.detector.AnalyzeFaces(ctx, frame)
	if err != nil {
		e.logger.Warn("Face analysis failed", "error", err)
		return
	}
	if analysis.Confidence < e.cfg.Face.ConfidenceThreshold && analysis.Count > 0 {
		return
	}
	e.emit(e.face.observe(analysis, at))
}

func (e *Engine) objectTick(ctx context.Context, at time.Time) {
	frame, err := e.source.VideoFrame(ctx)
	if err != nil {
		e.logger.Warn("Object tick: no video frame", "error", err)
		return
	}
	analysis, err := e.detector.DetectObjects(ctx, frame)
	if err != nil {
		e.logger.Warn("Object detection failed", "error", err)
		return
	}
	e.emit(e.object.observe(analysis, e.cfg.Object.ConfidenceThreshold, at))
}

func (e *Engine) gazeTick(ctx context.Context, at time.Time) {
	frame, err := e.source.VideoFrame(ctx)
	if err != nil {
		e.logger.Warn("Gaze tick: no video frame", "error", err)
		return
	}
	analysis, err := e.detector.AnalyzeGaze(ctx, frame)
	if err != nil {
		e.logger.Warn("Gaze analysis failed", "error", err)
		return
	}
	if analysis.Confidence < e.cfg.Gaze.ConfidenceThreshold {
		return
	}
	e.emit(e.gaze.observe(analysis, at))
}

func (e *Engine) audioTick(ctx context.Context, at time.Time) {
	sample, err := e.source.AudioSample(ctx)
	if err != nil {
		e.logger.Warn("Audio tick: no sample", "error", err)
		return
	}
	analysis, err := e.detector.AnalyzeAudio(ctx, sample)
	if err != nil {
		e.logger.Warn("Audio analysis failed", "error", err)
		return
	}
	e.emit(e.audio.observe(analysis, at))
}

// emit fans a result out to subscribers. Results arriving after Stop
// are dropped rather than delivered to torn-down consumers.
func (e *Engine) emit(result *DetectionResult) {
	if result == nil {
		return
	}
	select {
	case <-e.stopCh:
		return
	default:
	}

	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for id, fn := range e.subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Detection subscriber panicked", "subscriber", id, "panic", r)
				}
			}()
			fn(*result)
		}()
	}
}
