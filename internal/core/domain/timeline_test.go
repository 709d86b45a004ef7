package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimelineAppendEvictsOldest(t *testing.T) {
	tl := NewTimeline(3)

	for i := 0; i < 5; i++ {
		tl.Append(TimelineSample{Timestamp: float64(i), StressScore: float64(i) / 10})
	}

	samples := tl.Samples()
	assert.Len(t, samples, 3)
	assert.Equal(t, 2.0, samples[0].Timestamp)
	assert.Equal(t, 4.0, samples[2].Timestamp)
}

func TestTimelineReplaceTrimsToLimit(t *testing.T) {
	tl := NewTimeline(2)

	tl.Replace([]TimelineSample{
		{Timestamp: 1},
		{Timestamp: 2},
		{Timestamp: 3},
	})

	samples := tl.Samples()
	assert.Len(t, samples, 2)
	assert.Equal(t, 2.0, samples[0].Timestamp)
	assert.Equal(t, 3.0, samples[1].Timestamp)
}

func TestTimelineScores(t *testing.T) {
	tl := NewTimeline(10)
	tl.Append(TimelineSample{StressScore: 0.1})
	tl.Append(TimelineSample{StressScore: 0.7})

	assert.Equal(t, []float64{0.1, 0.7}, tl.Scores())
	assert.Equal(t, 2, tl.Len())
}

func TestTimelineSamplesReturnsCopy(t *testing.T) {
	tl := NewTimeline(10)
	tl.Append(TimelineSample{StressScore: 0.3})

	samples := tl.Samples()
	samples[0].StressScore = 0.9

	assert.Equal(t, 0.3, tl.Samples()[0].StressScore)
}

func TestTimelineDefaultLimit(t *testing.T) {
	tl := NewTimeline(0)
	assert.Equal(t, 100, tl.Limit())
}
