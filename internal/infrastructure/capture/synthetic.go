package capture

import (
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"stressmon/internal/core/ports"
)

// SyntheticProvider opens software-generated devices: a sine-tone microphone
// and a moving-gradient camera. It lets the agent run end to end without
// capture hardware and backs the package tests.
type SyntheticProvider struct {
	// ToneHz is the generated tone frequency. Defaults to 220 Hz.
	ToneHz float64
	// DeliveryInterval is the audio batch cadence. Defaults to 100 ms.
	DeliveryInterval time.Duration
}

func (p *SyntheticProvider) OpenAudio(constraints ports.MediaConstraints) (ports.AudioSource, error) {
	sampleRate := constraints.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	tone := p.ToneHz
	if tone <= 0 {
		tone = 220
	}
	interval := p.DeliveryInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	return &toneSource{
		sampleRate: sampleRate,
		tone:       tone,
		interval:   interval,
	}, nil
}

func (p *SyntheticProvider) OpenVideo(constraints ports.MediaConstraints) (ports.VideoSource, error) {
	width := constraints.FrameWidth
	if width <= 0 {
		width = 640
	}
	height := constraints.FrameHeight
	if height <= 0 {
		height = 480
	}
	return &gradientSource{width: width, height: height, opened: time.Now()}, nil
}

// toneSource delivers fixed-size sine wave batches on a ticker.
type toneSource struct {
	sampleRate int
	tone       float64
	interval   time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	phase  float64
}

func (s *toneSource) Start(onData func(samples []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		return nil // already delivering
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh

	batch := s.sampleRate * int(s.interval.Milliseconds()) / 1000

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				onData(s.generate(batch))
			}
		}
	}()
	return nil
}

func (s *toneSource) generate(n int) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := make([]float32, n)
	step := 2 * math.Pi * s.tone / float64(s.sampleRate)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(s.phase))
		s.phase += step
	}
	return samples
}

func (s *toneSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	return nil
}

// gradientSource renders a horizontal gradient that drifts over time, so
// consecutive frames differ.
type gradientSource struct {
	width  int
	height int
	opened time.Time

	mu     sync.Mutex
	closed bool
}

func (s *gradientSource) Frame() (image.Image, bool) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, false
	}

	shift := int(time.Since(s.opened).Milliseconds() / 50)
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			v := uint8((x + shift) * 255 / s.width)
			img.SetRGBA(x, y, color.RGBA{R: v, G: uint8(y * 255 / s.height), B: 128, A: 255})
		}
	}
	return img, true
}

func (s *gradientSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
