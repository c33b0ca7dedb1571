// Package streaming delivers generated tokens to live clients. Each
// client holds one session that walks a strict state machine; after a
// terminal state no further events reach the sink.
package streaming

import "time"

// EventType identifies a push event on the client channel.
type EventType string

const (
	EventConnected   EventType = "connected"
	EventStreamStart EventType = "stream_start"
	EventToken       EventType = "token"
	EventComplete    EventType = "stream_complete"
	EventError       EventType = "stream_error"
	EventHeartbeat   EventType = "heartbeat"
)

// Event is one JSON-encodable push to a client sink.
type Event struct {
	Type       EventType `json:"type"`
	ClientID   string    `json:"client_id,omitempty"`
	Token      string    `json:"token,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	Content    string    `json:"content,omitempty"`
	Model      string    `json:"model,omitempty"`
	TokenCount int       `json:"token_count,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink is the transport half of a session: something that can push
// events to the client and reports when the client goes away.
type Sink interface {
	// Send pushes one event. An error means the transport is broken;
	// the engine treats it like a disconnect.
	Send(event *Event) error

	// Done is closed when the client disconnects.
	Done() <-chan struct{}
}
