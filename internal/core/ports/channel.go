package ports

import (
	"context"
	"encoding/json"

	"stressmon/internal/core/domain"
)

// EventType is the closed set of message tags exchanged with the remote
// inference service.
type EventType string

const (
	// Outbound, client -> service.
	EventAudioChunk     EventType = "audio_chunk"
	EventVideoFrame     EventType = "video_frame"
	EventFusionRequest  EventType = "fusion_request"
	EventGetSessionInfo EventType = "get_session_info"
	EventGetTimeline    EventType = "get_timeline"

	// Inbound, service -> client.
	EventSessionCreated EventType = "session_created"
	EventAudioResult    EventType = "audio_result"
	EventVideoResult    EventType = "video_result"
	EventStressUpdate   EventType = "stress_update"
	EventSessionUpdate  EventType = "session_update"
	EventAlert          EventType = "alert"
	EventTimelineData   EventType = "timeline_data"
	EventSessionInfo    EventType = "session_info"
	EventError          EventType = "error"
)

// EventHandler receives the raw payload of an inbound event. Handlers for
// the same event run in registration order.
type EventHandler func(payload json.RawMessage)

// Subscription identifies a registered handler so it can be removed.
type Subscription string

// Channel maintains one logical connection to the remote inference service
// and provides a typed event interface over it.
type Channel interface {
	// Connect opens the connection and blocks until the service acknowledges
	// it with a session id, or the acknowledgment budget expires
	// (domain.ErrConnectionTimeout).
	Connect(ctx context.Context) error

	// Disconnect closes the connection and clears the session id. Idempotent.
	Disconnect() error

	Connected() bool
	SessionID() domain.SessionID

	Subscribe(event EventType, handler EventHandler) Subscription
	Unsubscribe(event EventType, sub Subscription)

	// Publish sends a typed message tagged with the cached session id. It is
	// a silent no-op while not connected; messages produced during a
	// reconnect window are dropped, not queued.
	Publish(event EventType, payload interface{}) error

	// OnDisconnect registers a callback invoked once when the channel
	// becomes terminally disconnected (reconnect budget exhausted or remote
	// close without reconnection).
	OnDisconnect(fn func(err error))
}
