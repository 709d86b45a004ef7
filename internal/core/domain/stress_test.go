package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStress(t *testing.T) {
	t.Run("Low band below 0.33", func(t *testing.T) {
		assert.Equal(t, StressLow, ClassifyStress(0.0))
		assert.Equal(t, StressLow, ClassifyStress(0.20))
		assert.Equal(t, StressLow, ClassifyStress(0.329))
	})

	t.Run("Medium band including both boundaries", func(t *testing.T) {
		assert.Equal(t, StressMedium, ClassifyStress(0.33))
		assert.Equal(t, StressMedium, ClassifyStress(0.50))
		assert.Equal(t, StressMedium, ClassifyStress(0.66))
	})

	t.Run("High band above 0.66", func(t *testing.T) {
		assert.Equal(t, StressHigh, ClassifyStress(0.661))
		assert.Equal(t, StressHigh, ClassifyStress(0.80))
		assert.Equal(t, StressHigh, ClassifyStress(1.0))
	})
}

func TestClassify(t *testing.T) {
	t.Run("Low classification", func(t *testing.T) {
		c := Classify(0.15)

		assert.Equal(t, StressLow, c.Level)
		assert.Equal(t, 0.15, c.Score)
		assert.Equal(t, "green", c.Color)
		assert.NotEmpty(t, c.Description)
		assert.NotEmpty(t, c.Recommendation)
	})

	t.Run("Medium classification", func(t *testing.T) {
		c := Classify(0.5)

		assert.Equal(t, StressMedium, c.Level)
		assert.Equal(t, "yellow", c.Color)
	})

	t.Run("High classification", func(t *testing.T) {
		c := Classify(0.9)

		assert.Equal(t, StressHigh, c.Level)
		assert.Equal(t, "red", c.Color)
	})
}

func TestAnalyzeTrend(t *testing.T) {
	t.Run("InsufficientData", func(t *testing.T) {
		trend := AnalyzeTrend([]float64{0.5}, 10)

		assert.Equal(t, "insufficient_data", trend.Trend)
		assert.Equal(t, "neutral", trend.Direction)
	})

	t.Run("Increasing", func(t *testing.T) {
		scores := []float64{0.1, 0.1, 0.1, 0.5, 0.5, 0.5}

		trend := AnalyzeTrend(scores, 10)

		assert.Equal(t, "increasing", trend.Trend)
		assert.Equal(t, "up", trend.Direction)
		assert.InDelta(t, 0.4, trend.Change, 1e-9)
	})

	t.Run("Decreasing", func(t *testing.T) {
		scores := []float64{0.8, 0.8, 0.8, 0.2, 0.2, 0.2}

		trend := AnalyzeTrend(scores, 10)

		assert.Equal(t, "decreasing", trend.Trend)
		assert.Equal(t, "down", trend.Direction)
	})

	t.Run("StableWithinDeadBand", func(t *testing.T) {
		scores := []float64{0.50, 0.51, 0.49, 0.52, 0.50, 0.51}

		trend := AnalyzeTrend(scores, 10)

		assert.Equal(t, "stable", trend.Trend)
		assert.Equal(t, "neutral", trend.Direction)
	})

	t.Run("WindowLimitsAnalysis", func(t *testing.T) {
		// Old high values outside the window must not affect the result.
		scores := append([]float64{0.9, 0.9, 0.9, 0.9}, 0.2, 0.2, 0.2, 0.2)

		trend := AnalyzeTrend(scores, 4)

		assert.Equal(t, "stable", trend.Trend)
		assert.InDelta(t, 0.2, trend.RecentAverage, 1e-9)
	})
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", FormatDuration(5*time.Second))
	assert.Equal(t, "2m 3s", FormatDuration(123*time.Second))
	assert.Equal(t, "1h 2m 3s", FormatDuration(3723*time.Second))
}
