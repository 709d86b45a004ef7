package domain

// Wire payload shapes for outbound requests and a few inbound events whose
// body is not a bare domain type. Field names are the shared contract with
// the remote inference service.

type AudioChunkPayload struct {
	SessionID SessionID `json:"session_id"`
	AudioData string    `json:"audio_data"`
}

type VideoFramePayload struct {
	SessionID SessionID `json:"session_id"`
	FrameData string    `json:"frame_data"`
}

type SessionInfoRequest struct {
	SessionID SessionID `json:"session_id"`
}

type TimelineRequest struct {
	SessionID SessionID `json:"session_id"`
	Limit     int       `json:"limit"`
}

type SessionCreatedPayload struct {
	SessionID SessionID `json:"session_id"`
	Message   string    `json:"message,omitempty"`
}

type TimelineDataPayload struct {
	Timeline []TimelineSample `json:"timeline"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
