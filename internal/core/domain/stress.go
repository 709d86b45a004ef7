package domain

// StressLevel is the categorical band of a normalized 0-1 stress score.
type StressLevel string

const (
	StressLow    StressLevel = "Low"
	StressMedium StressLevel = "Medium"
	StressHigh   StressLevel = "High"
)

// Threshold contract shared with server-originated alerting. Must match the
// remote service exactly: <0.33 Low, 0.33-0.66 Medium, >0.66 High.
const (
	StressLowThreshold  = 0.33
	StressHighThreshold = 0.66
)

// ClassifyStress maps a stress score onto its band. Both boundary values
// classify Medium.
func ClassifyStress(score float64) StressLevel {
	switch {
	case score < StressLowThreshold:
		return StressLow
	case score <= StressHighThreshold:
		return StressMedium
	default:
		return StressHigh
	}
}

// Classification carries the display-side interpretation of a stress score.
type Classification struct {
	Level          StressLevel `json:"level"`
	Score          float64     `json:"score"`
	Color          string      `json:"color"`
	Description    string      `json:"description"`
	Recommendation string      `json:"recommendation"`
}

// Classify interprets a stress score for presentation.
func Classify(score float64) Classification {
	c := Classification{Level: ClassifyStress(score), Score: score}

	switch c.Level {
	case StressLow:
		c.Color = "green"
		c.Description = "Worker appears calm and relaxed"
		c.Recommendation = "Maintain current work conditions"
	case StressMedium:
		c.Color = "yellow"
		c.Description = "Worker shows moderate stress indicators"
		c.Recommendation = "Monitor closely for any changes"
	default:
		c.Color = "red"
		c.Description = "Worker shows elevated stress levels"
		c.Recommendation = "Suggest taking a break and assess workload"
	}

	return c
}

// Trend summarizes the direction of recent stress scores.
type Trend struct {
	Trend         string  `json:"trend"`
	Direction     string  `json:"direction"`
	Change        float64 `json:"change"`
	RecentAverage float64 `json:"recent_average,omitempty"`
}

// AnalyzeTrend compares the first and second half of the most recent window
// of scores. Changes under 0.05 count as stable.
func AnalyzeTrend(scores []float64, window int) Trend {
	if len(scores) < 2 {
		return Trend{Trend: "insufficient_data", Direction: "neutral"}
	}

	if window > len(scores) {
		window = len(scores)
	}
	recent := scores[len(scores)-window:]

	first := recent[:len(recent)/2]
	second := recent[len(recent)/2:]

	avgFirst := mean(first)
	avgSecond := mean(second)
	change := avgSecond - avgFirst

	t := Trend{Change: change, RecentAverage: avgSecond}
	switch {
	case change > -0.05 && change < 0.05:
		t.Trend = "stable"
		t.Direction = "neutral"
	case change > 0:
		t.Trend = "increasing"
		t.Direction = "up"
	default:
		t.Trend = "decreasing"
		t.Direction = "down"
	}

	return t
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
