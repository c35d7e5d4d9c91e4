package capture

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/proctoring-service/internal/detection"
)

type StreamKind string

const (
	StreamVideo  StreamKind = "video"
	StreamAudio  StreamKind = "audio"
	StreamScreen StreamKind = "screen"
)

type DeviceErrorKind string

const (
	DevicePermissionDenied DeviceErrorKind = "permission_denied"
	DeviceNotFound         DeviceErrorKind = "not_found"
	DeviceBusy             DeviceErrorKind = "busy"
	DeviceOverconstrained  DeviceErrorKind = "overconstrained"
)

// DeviceError is the typed failure the device boundary reports; callers
// surface Remediation to the student instead of crashing the session.
type DeviceError struct {
	Kind   DeviceErrorKind
	Device StreamKind
	Reason string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s device error (%s): %s", e.Device, e.Kind, e.Reason)
}

// Remediation maps the failure onto a message the student can act on.
func (e *DeviceError) Remediation() string {
	switch e.Kind {
	case DevicePermissionDenied:
		return fmt.Sprintf("Access to your %s was denied. Please allow access in your browser settings and reload.", e.Device)
	case DeviceNotFound:
		return fmt.Sprintf("No %s device was found. Please connect one and try again.", e.Device)
	case DeviceBusy:
		return fmt.Sprintf("Your %s is in use by another application. Please close it and try again.", e.Device)
	case DeviceOverconstrained:
		return fmt.Sprintf("Your %s does not support the required settings.", e.Device)
	default:
		return "A media device error occurred. Please check your devices and try again."
	}
}

// Constraints narrows which device and quality to open.
type Constraints struct {
	DeviceID  string
	Width     int
	Height    int
	FrameRate int
}

type Track interface {
	ID() string
	Kind() StreamKind
	Close() error
}

type VideoTrack interface {
	Track
	Frame(ctx context.Context) (detection.Frame, error)
	// OnEnded registers an observer fired when the source stops the
	// track itself, e.g. the user ends screen sharing.
	OnEnded(fn func())
}

type AudioTrack interface {
	Track
	Sample(ctx context.Context) (detection.AudioSample, error)
	// Level returns the current volume normalized to 0-1.
	Level(ctx context.Context) (float64, error)
}

// MediaDevices is the device/browser boundary the controller drives.
type MediaDevices interface {
	// Probe opens and immediately releases a test stream.
	Probe(ctx context.Context, kind StreamKind) error
	OpenVideo(ctx context.Context, c Constraints) (VideoTrack, error)
	OpenAudio(ctx context.Context, c Constraints) (AudioTrack, error)
	OpenScreen(ctx context.Context, c Constraints) (VideoTrack, error)
	// SupportedRecordingTypes lists the container/codec combinations the
	// platform can record, best first.
	SupportedRecordingTypes() []string
}
