package streaming

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"dev.helix.chat/internal/observability/metrics"
)

// SessionState is a node of the per-session state machine:
// INIT → STREAMING → {COMPLETED | ERRORED | DISCONNECTED}.
type SessionState string

const (
	StateInit         SessionState = "INIT"
	StateStreaming    SessionState = "STREAMING"
	StateCompleted    SessionState = "COMPLETED"
	StateErrored      SessionState = "ERRORED"
	StateDisconnected SessionState = "DISCONNECTED"
)

// Terminal reports whether no further transitions or events are
// allowed from this state.
func (s SessionState) Terminal() bool {
	switch s {
	case StateCompleted, StateErrored, StateDisconnected:
		return true
	}
	return false
}

var validTransitions = map[SessionState][]SessionState{
	StateInit:      {StateStreaming, StateDisconnected},
	StateStreaming: {StateCompleted, StateErrored, StateDisconnected},
}

// Session is the connection-scoped streaming state: identity, state
// machine position, and the text accumulated so far. All methods are
// safe for concurrent use; the mutex also orders Send calls so the
// terminal check and the send are atomic with respect to disconnects.
type Session struct {
	ClientID string

	mu          sync.Mutex
	state       SessionState
	sink        Sink
	collector   *metrics.Collector
	accumulated strings.Builder
	tokenCount  int
	cancel      func()
	createdAt   time.Time
}

func newSession(clientID string, sink Sink, collector *metrics.Collector) *Session {
	return &Session{
		ClientID:  clientID,
		state:     StateInit,
		sink:      sink,
		collector: collector,
		createdAt: time.Now(),
	}
}

// State returns the current state machine position.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Accumulated returns the text gathered so far.
func (s *Session) Accumulated() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated.String()
}

// TokenCount returns the number of token chunks relayed.
func (s *Session) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCount
}

// transition moves the state machine, rejecting moves out of a
// terminal state or along an edge the machine does not have.
func (s *Session) transition(to SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to SessionState) error {
	for _, allowed := range validTransitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid session transition %s -> %s", s.state, to)
}

// emit sends an event if and only if the session has not reached a
// terminal state. Returns false when the event was suppressed.
func (s *Session) emit(event *Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false, nil
	}
	event.ClientID = s.ClientID
	event.Timestamp = time.Now()
	err := s.sink.Send(event)
	if err == nil && s.collector != nil {
		s.collector.StreamEvents.WithLabelValues(string(event.Type)).Inc()
	}
	return true, err
}

// emitTerminal atomically performs the final transition and sends the
// closing event, so nothing can interleave another event after it.
func (s *Session) emitTerminal(to SessionState, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return nil
	}
	if err := s.transitionLocked(to); err != nil {
		return err
	}
	event.ClientID = s.ClientID
	event.Timestamp = time.Now()
	err := s.sink.Send(event)
	if err == nil && s.collector != nil {
		s.collector.StreamEvents.WithLabelValues(string(event.Type)).Inc()
	}
	return err
}

// accumulate records one relayed token chunk.
func (s *Session) accumulate(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accumulated.WriteString(delta)
	s.tokenCount++
}

// markDisconnected flips the session to DISCONNECTED without sending
// anything and aborts any in-flight generation.
func (s *Session) markDisconnected() {
	s.mu.Lock()
	cancel := s.cancel
	if !s.state.Terminal() {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// bindCancel stores the abort hook for the in-flight generation.
func (s *Session) bindCancel(cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}
