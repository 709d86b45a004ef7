package ports

import (
	"image"
	"time"
)

// MediaConstraints describes the requested device capabilities.
type MediaConstraints struct {
	SampleRate  int
	Channels    int
	FrameWidth  int
	FrameHeight int
}

// AudioSource delivers raw PCM sample batches from a microphone. Start
// launches continuous delivery; each callback invocation is one processing
// batch. Stop halts delivery and releases the device track.
type AudioSource interface {
	Start(onData func(samples []float32)) error
	Stop() error
}

// VideoSource exposes the most recent frame of a live camera feed. Frame
// reports false while no frame is available yet.
type VideoSource interface {
	Frame() (image.Image, bool)
	Close() error
}

// DeviceProvider opens capture devices. Implementations surface
// domain.ErrPermissionDenied when access is refused and
// domain.ErrDeviceUnavailable when no matching device exists.
type DeviceProvider interface {
	OpenAudio(constraints MediaConstraints) (AudioSource, error)
	OpenVideo(constraints MediaConstraints) (VideoSource, error)
}

// MediaOrchestrator owns device acquisition and periodic sampling.
type MediaOrchestrator interface {
	// AcquireDevices requests camera and microphone access, opening
	// independent audio and video tracks so each can be stopped on its own.
	AcquireDevices(constraints MediaConstraints) error

	// StartAudioCapture begins continuous sample accumulation. Every time
	// wall-clock elapsed since the last flush reaches chunkDuration, the
	// accumulated buffer is flushed as one base64-encoded chunk and onChunk
	// is invoked. No samples are dropped at chunk boundaries.
	StartAudioCapture(chunkDuration time.Duration, onChunk func(encoded string)) error

	// SampleVideoFrame synchronously rasterizes the current frame to JPEG
	// and returns the base64 payload, or "" when no frame is available
	// (callers skip the tick).
	SampleVideoFrame() string

	// StopAudioCapture and StopAllStreams are idempotent and tolerant of
	// partial startup failure. After StopAllStreams returns no further
	// onChunk callback fires.
	StopAudioCapture()
	StopAllStreams()

	Running() bool
}
