package detection

import (
	"context"
	"image"
	"time"
)

// Frame is one captured video frame handed to a detector.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// AudioSample is a short audio window handed to the audio detector.
type AudioSample struct {
	PCM        []byte
	SampleRate int
	CapturedAt time.Time
}

type DetectedObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type FaceAnalysis struct {
	Count      int     `json:"count"`
	Confidence float64 `json:"confidence"`
}

type ObjectAnalysis struct {
	Objects    []DetectedObject `json:"objects"`
	Confidence float64          `json:"confidence"`
}

type GazeAnalysis struct {
	LookingAway bool    `json:"looking_away"`
	Confidence  float64 `json:"confidence"`
}

type AudioAnalysis struct {
	VoiceCount    int     `json:"voice_count"`
	AverageVolume float64 `json:"average_volume"` // normalized 0-1
	Confidence    float64 `json:"confidence"`
}

// Detector is the model boundary. Implementations wrap an inference
// service or library; the engine treats them as a black box and only
// owns the escalation policy on top of their answers.
type Detector interface {
	AnalyzeFaces(ctx context.Context, frame Frame) (FaceAnalysis, error)
	DetectObjects(ctx context.Context, frame Frame) (ObjectAnalysis, error)
	AnalyzeGaze(ctx context.Context, frame Frame) (GazeAnalysis, error)
	AnalyzeAudio(ctx context.Context, sample AudioSample) (AudioAnalysis, error)
}

// FrameSource yields the current video frame and audio window. The
// capture controller implements this.
type FrameSource interface {
	VideoFrame(ctx context.Context) (Frame, error)
	AudioSample(ctx context.Context) (AudioSample, error)
}
