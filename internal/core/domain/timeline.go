package domain

import "sync"

// TimelineSample is one point of the stress timeline pushed by the remote
// service. Timestamps are unix seconds with fractional part, matching the
// wire format.
type TimelineSample struct {
	Timestamp   float64     `json:"timestamp"`
	StressScore float64     `json:"stress_score"`
	StressLevel StressLevel `json:"stress_level,omitempty"`
	Emotion     string      `json:"emotion,omitempty"`
}

// Timeline is a bounded buffer of the latest N samples. Safe for concurrent
// use.
type Timeline struct {
	mu      sync.RWMutex
	limit   int
	samples []TimelineSample
}

func NewTimeline(limit int) *Timeline {
	if limit <= 0 {
		limit = 100
	}
	return &Timeline{limit: limit}
}

// Append adds a sample, evicting the oldest when over the limit.
func (t *Timeline) Append(s TimelineSample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples = append(t.samples, s)
	if len(t.samples) > t.limit {
		t.samples = t.samples[len(t.samples)-t.limit:]
	}
}

// Replace swaps the buffer content for a freshly pushed timeline, trimmed to
// the latest N samples.
func (t *Timeline) Replace(samples []TimelineSample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(samples) > t.limit {
		samples = samples[len(samples)-t.limit:]
	}
	t.samples = append(t.samples[:0:0], samples...)
}

// Samples returns a copy of the buffered samples, oldest first.
func (t *Timeline) Samples() []TimelineSample {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]TimelineSample(nil), t.samples...)
}

// Scores returns just the stress scores, oldest first.
func (t *Timeline) Scores() []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	scores := make([]float64, len(t.samples))
	for i, s := range t.samples {
		scores[i] = s.StressScore
	}
	return scores
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}

func (t *Timeline) Limit() int {
	return t.limit
}
