package transport

import (
	"encoding/json"

	"stressmon/internal/core/domain"
	"stressmon/internal/core/ports"
)

// Envelope is the wire framing for every message in both directions.
type Envelope struct {
	Event     ports.EventType  `json:"event"`
	SessionID domain.SessionID `json:"session_id,omitempty"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}
