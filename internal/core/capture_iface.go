package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/huddle/internal/domain"
)

// CaptureFrame is one fixed-duration chunk of local microphone audio.
type CaptureFrame struct {
	// PCM is signed 16-bit mono at the driver's sample rate.
	PCM []int16
}

// CaptureStream is an open capture device. ReadFrame blocks until the next
// frame is available or the stream is closed.
type CaptureStream interface {
	ReadFrame() (CaptureFrame, error)
	Close() error
}

// CaptureDriver opens the host audio device described by the settings. The
// actual device access is host-specific and lives behind this interface.
type CaptureDriver interface {
	Open(set domain.DeviceSettings) (CaptureStream, error)
}

// MediaSource owns the local outbound audio: acquisition, enablement and
// device hot-swap. One per engine.
type MediaSource interface {
	// Acquire opens capture per the given settings and starts feeding the
	// outbound track. Fails when the device is unavailable.
	Acquire(ctx context.Context, set domain.DeviceSettings) error
	// Release stops capture and drops the stream. Idempotent.
	Release()
	// Track returns the outbound track to attach to peer connections.
	// Nil until acquired.
	Track() webrtc.TrackLocal
	// SetEnabled gates outbound audio. Hard mute is the only caller.
	SetEnabled(enabled bool)
	// Switch hot-swaps the capture device without dropping the track.
	Switch(set domain.DeviceSettings) error
	// Level reports the most recent capture energy on a 0-100 scale.
	Level() int
}
