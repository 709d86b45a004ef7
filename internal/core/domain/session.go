package domain

import (
	"fmt"
	"time"
)

type SessionID string
type WorkerID string

// SessionState is the lifecycle state of a capture session.
type SessionState int

const (
	StateAwaitingConsent SessionState = iota
	StateConnecting
	StateActive
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingConsent:
		return "AWAITING_CONSENT"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// CaptureSession identifies one monitoring session. The session id is
// assigned by the remote service on connect.
type CaptureSession struct {
	ID             SessionID
	State          SessionState
	ConsentGranted bool
	StartedAt      time.Time
}

// SessionAnalytics mirrors the analytics block pushed by the remote service
// inside session_update / session_info events.
type SessionAnalytics struct {
	AverageStress        float64            `json:"average_stress"`
	PeakStress           float64            `json:"peak_stress"`
	MinStress            float64            `json:"min_stress"`
	StressVariance       float64            `json:"stress_variance"`
	EmotionDistribution  map[string]float64 `json:"emotion_distribution"`
	HighStressPercentage float64            `json:"high_stress_percentage"`
	DataPoints           int                `json:"data_points"`
}

// SessionInfo is the read-only session projection pushed by the remote
// service. Held only for display.
type SessionInfo struct {
	SessionID         SessionID        `json:"session_id"`
	WorkerID          WorkerID         `json:"worker_id"`
	Duration          float64          `json:"duration"`
	DurationFormatted string           `json:"duration_formatted"`
	Status            string           `json:"status"`
	CurrentStress     float64          `json:"current_stress"`
	CurrentEmotion    string           `json:"current_emotion"`
	TotalUpdates      int              `json:"total_updates"`
	Analytics         SessionAnalytics `json:"analytics"`
}

// FormatDuration renders a duration the way the remote service does
// ("1h 2m 3s"), so locally computed values match pushed ones.
func FormatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	secs = secs % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
