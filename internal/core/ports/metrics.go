package ports

// MetricsRecorder receives operational counters from the capture pipeline.
type MetricsRecorder interface {
	AudioChunkSent(bytes int)
	VideoFrameSent(bytes int)
	FusionRequested()
	ReconnectAttempted()
	AlertReceived(severity string)
	SetConnected(connected bool)
	SetStressScore(score float64)
}
