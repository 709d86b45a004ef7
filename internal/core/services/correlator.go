package services

import (
	"sync"

	"stressmon/internal/core/domain"
)

// ResultCorrelator pairs the latest result from each modality and triggers a
// fusion request the moment a pair is available.
//
// The design is latest-wins with an immediate trigger, not a timestamp
// matched join: every accepted arrival re-triggers fusion against whatever
// the other modality most recently produced, so the two halves of a pair may
// differ in capture time by up to one chunk/frame interval. That skew is an
// accepted tradeoff for responsiveness.
type ResultCorrelator struct {
	mu        sync.Mutex
	lastAudio *domain.ModalityResult
	lastVideo *domain.ModalityResult
	emit      func(audio, video domain.ModalityResult)
}

// NewResultCorrelator builds a correlator that calls emit once per accepted
// result for which the other modality already holds a value.
func NewResultCorrelator(emit func(audio, video domain.ModalityResult)) *ResultCorrelator {
	return &ResultCorrelator{emit: emit}
}

// OnAudioResult stores the result as the latest audio value and triggers
// fusion when a video value is held.
func (c *ResultCorrelator) OnAudioResult(r domain.ModalityResult) {
	c.mu.Lock()
	c.lastAudio = &r
	audio, video := c.lastAudio, c.lastVideo
	c.mu.Unlock()

	if video != nil {
		c.emit(*audio, *video)
	}
}

// OnVideoResult stores the result as the latest video value and triggers
// fusion when an audio value is held. Results without a detected face are
// discarded, not stored.
func (c *ResultCorrelator) OnVideoResult(r domain.ModalityResult) {
	if !r.FaceDetected {
		return
	}

	c.mu.Lock()
	c.lastVideo = &r
	audio, video := c.lastAudio, c.lastVideo
	c.mu.Unlock()

	if audio != nil {
		c.emit(*audio, *video)
	}
}

// Reset clears both holders, for session teardown.
func (c *ResultCorrelator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAudio = nil
	c.lastVideo = nil
}
