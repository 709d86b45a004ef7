package domain

// Modality is one of the two independent sensing channels.
type Modality string

const (
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
)

// ModalityResult is the remote service's response to a single audio chunk or
// video frame. Transient: each new result of a modality supersedes the
// previous one.
type ModalityResult struct {
	Modality             Modality           `json:"modality"`
	Emotion              string             `json:"emotion,omitempty"`
	EmotionProbabilities map[string]float64 `json:"emotion_probabilities,omitempty"`
	StressScore          float64            `json:"stress_score"`
	StressLevel          StressLevel        `json:"stress_level,omitempty"`
	Confidence           float64            `json:"confidence"`
	FaceDetected         bool               `json:"face_detected,omitempty"`
}

// FusionRequest pairs the latest audio and video results to request a
// combined stress score. Exists only for the duration of the call.
type FusionRequest struct {
	SessionID   SessionID       `json:"session_id"`
	AudioResult *ModalityResult `json:"audio_result"`
	VideoResult *ModalityResult `json:"video_result"`
}

// ModalitySummary is the per-modality breakdown embedded in a StressUpdate.
type ModalitySummary struct {
	StressScore float64     `json:"stress_score"`
	Emotion     string      `json:"emotion"`
	Confidence  float64     `json:"confidence"`
	StressLevel StressLevel `json:"stress_level"`
}

// FusionWeights are the dynamic per-modality weights the service used.
type FusionWeights struct {
	Audio float64 `json:"audio"`
	Video float64 `json:"video"`
}

// StressUpdate is the fused result pushed by the remote service.
type StressUpdate struct {
	StressScore       float64          `json:"stress_score"`
	StressLevel       StressLevel      `json:"stress_level"`
	Confidence        float64          `json:"confidence"`
	ModalitiesUsed    []string         `json:"modalities_used"`
	Audio             *ModalitySummary `json:"audio,omitempty"`
	Video             *ModalitySummary `json:"video,omitempty"`
	FusionMethod      string           `json:"fusion_method"`
	ModalityAgreement string           `json:"modality_agreement"`
	Weights           *FusionWeights   `json:"weights,omitempty"`
}
