package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image/jpeg"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"stressmon/internal/core/domain"
	"stressmon/internal/core/ports"
	"stressmon/pkg/tracing"
)

const defaultJPEGQuality = 80

// Orchestrator owns device acquisition and periodic sampling. It implements
// ports.MediaOrchestrator on top of a pluggable DeviceProvider, keeping the
// audio and video tracks independent so each can be stopped on its own.
type Orchestrator struct {
	provider    ports.DeviceProvider
	logger      *zap.SugaredLogger
	jpegQuality int

	mu        sync.Mutex
	audio     ports.AudioSource
	video     ports.VideoSource
	running   bool
	chunkDur  time.Duration
	onChunk   func(string)
	acc       []float32
	lastFlush time.Time
}

// NewOrchestrator builds an orchestrator with no devices acquired.
func NewOrchestrator(provider ports.DeviceProvider, logger *zap.SugaredLogger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		provider:    provider,
		logger:      logger,
		jpegQuality: defaultJPEGQuality,
	}
}

// SetJPEGQuality overrides the frame encoding quality (1-100).
func (o *Orchestrator) SetJPEGQuality(q int) {
	if q > 0 && q <= 100 {
		o.jpegQuality = q
	}
}

// AcquireDevices requests microphone and camera access and splits them into
// independent tracks. A partial failure releases whatever was acquired.
func (o *Orchestrator) AcquireDevices(constraints ports.MediaConstraints) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	audio, err := o.provider.OpenAudio(constraints)
	if err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}

	video, err := o.provider.OpenVideo(constraints)
	if err != nil {
		audio.Stop()
		return fmt.Errorf("open video device: %w", err)
	}

	o.audio = audio
	o.video = video
	o.logger.Infow("devices acquired",
		"sample_rate", constraints.SampleRate,
		"frame_size", fmt.Sprintf("%dx%d", constraints.FrameWidth, constraints.FrameHeight),
	)
	return nil
}

// StartAudioCapture begins continuous sample accumulation. The flush
// boundary is a wall-clock threshold, not a sample count: a chunk is a whole
// number of delivery batches covering at least chunkDuration, and no sample
// is dropped at the boundary.
func (o *Orchestrator) StartAudioCapture(chunkDuration time.Duration, onChunk func(encoded string)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.audio == nil {
		return fmt.Errorf("start audio capture: %w", domain.ErrDeviceUnavailable)
	}
	if o.running {
		return fmt.Errorf("audio capture already running")
	}

	o.running = true
	o.chunkDur = chunkDuration
	o.onChunk = onChunk
	o.acc = o.acc[:0]
	o.lastFlush = time.Now()

	if err := o.audio.Start(o.handleSamples); err != nil {
		o.running = false
		return fmt.Errorf("start audio source: %w", err)
	}
	return nil
}

// handleSamples accumulates one delivery batch and flushes when the elapsed
// time since the last flush reaches the chunk duration. The callback runs
// under the orchestrator lock so that StopAllStreams returning guarantees no
// further onChunk fires.
func (o *Orchestrator) handleSamples(samples []float32) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return
	}

	o.acc = append(o.acc, samples...)

	if time.Since(o.lastFlush) < o.chunkDur {
		return
	}

	_, span := tracing.TraceCaptureOperation(context.Background(), "flush_chunk", "audio")
	encoded := encodeChunk(o.acc)
	o.acc = o.acc[:0]
	o.lastFlush = time.Now()

	o.onChunk(encoded)
	span.End()
}

// SampleVideoFrame synchronously rasterizes the current frame to JPEG and
// returns the base64 payload, or "" when no frame is available yet. An empty
// result means "skip this tick", not an error.
func (o *Orchestrator) SampleVideoFrame() string {
	o.mu.Lock()
	video := o.video
	quality := o.jpegQuality
	o.mu.Unlock()

	if video == nil {
		return ""
	}

	img, ok := video.Frame()
	if !ok {
		return ""
	}

	_, span := tracing.TraceCaptureOperation(context.Background(), "sample_frame", "video")
	defer span.End()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		o.logger.Warnw("frame encode failed", "error", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// StopAudioCapture disconnects the audio processing pipeline. Safe to call
// multiple times and after partial startup failure.
func (o *Orchestrator) StopAudioCapture() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopAudioLocked()
}

func (o *Orchestrator) stopAudioLocked() {
	o.running = false
	o.acc = nil
	o.onChunk = nil
	if o.audio != nil {
		if err := o.audio.Stop(); err != nil {
			o.logger.Warnw("audio source stop failed", "error", err)
		}
	}
}

// StopAllStreams stops audio processing, then every device track. Idempotent
// and tolerant of nil members; once it returns no capture callback fires.
func (o *Orchestrator) StopAllStreams() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopAudioLocked()
	o.audio = nil

	if o.video != nil {
		if err := o.video.Close(); err != nil {
			o.logger.Warnw("video source close failed", "error", err)
		}
		o.video = nil
	}
}

// Running reports whether audio capture is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// encodeChunk serializes PCM samples as float32 little-endian bytes, base64
// encoded, matching the wire format the service decodes.
func encodeChunk(samples []float32) string {
	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}
