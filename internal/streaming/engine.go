package streaming

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dev.helix.chat/internal/llm"
	"dev.helix.chat/internal/models"
	"dev.helix.chat/internal/observability/metrics"
	"dev.helix.chat/internal/storage"
)

// DefaultHeartbeatInterval paces keepalive events during generation to
// defend against idle-timeout disconnects on intermediaries.
const DefaultHeartbeatInterval = 15 * time.Second

// Engine owns the session registry and drives generations against the
// provider, relaying token chunks to each client's sink.
type Engine struct {
	provider  llm.Provider
	messages  storage.MessageStore
	logger    *logrus.Logger
	collector *metrics.Collector

	heartbeatInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHeartbeatInterval overrides the keepalive pacing. Zero disables
// heartbeats.
func WithHeartbeatInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.heartbeatInterval = d }
}

// WithCollector instruments session counts and emitted events.
func WithCollector(collector *metrics.Collector) EngineOption {
	return func(e *Engine) { e.collector = collector }
}

// NewEngine creates a streaming engine.
func NewEngine(provider llm.Provider, messages storage.MessageStore, logger *logrus.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		provider:          provider,
		messages:          messages,
		logger:            logger,
		heartbeatInterval: DefaultHeartbeatInterval,
		sessions:          make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize registers a session for the client, emits the connected
// event, and starts watching the sink for disconnection. An existing
// session under the same client id is replaced after being marked
// disconnected.
func (e *Engine) Initialize(clientID string, sink Sink) (*Session, error) {
	if clientID == "" {
		return nil, &models.ValidationError{Field: "client_id", Reason: "must not be empty"}
	}
	if sink == nil {
		return nil, &models.ValidationError{Field: "sink", Reason: "must not be nil"}
	}

	session := newSession(clientID, sink, e.collector)

	e.mu.Lock()
	prev, replaced := e.sessions[clientID]
	if replaced {
		prev.markDisconnected()
	}
	e.sessions[clientID] = session
	e.mu.Unlock()

	if !replaced && e.collector != nil {
		e.collector.ActiveSessions.Inc()
	}

	if _, err := session.emit(&Event{Type: EventConnected}); err != nil {
		e.remove(clientID, session)
		return nil, fmt.Errorf("failed to deliver connected event: %w", err)
	}

	go e.watchSink(session)

	e.logger.WithField("client_id", clientID).Debug("Streaming session registered")
	return session, nil
}

// Session returns the registered session for a client, if any.
func (e *Engine) Session(clientID string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[clientID]
	return s, ok
}

// ActiveSessions returns the number of registered sessions.
func (e *Engine) ActiveSessions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// StreamGeneration runs one incremental completion for the client and
// relays each chunk as a token event. On provider completion the final
// assistant message is persisted and a stream_complete event carries
// its id; on provider error the session ends in ERRORED and nothing is
// persisted. The call blocks until the session reaches a terminal
// state.
func (e *Engine) StreamGeneration(ctx context.Context, clientID, conversationID string, messages []llm.ChatMessage, opts llm.CompletionOptions) error {
	session, ok := e.Session(clientID)
	if !ok {
		return &models.NotFoundError{Kind: "streaming session", ID: clientID}
	}
	defer e.remove(clientID, session)

	if err := session.transition(StateStreaming); err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	session.bindCancel(cancel)

	if _, err := session.emit(&Event{Type: EventStreamStart}); err != nil {
		session.markDisconnected()
		return fmt.Errorf("failed to deliver stream_start event: %w", err)
	}

	events, err := e.provider.CompleteStream(streamCtx, &llm.CompletionRequest{
		Messages: messages,
		Options:  opts,
	})
	if err != nil {
		e.logger.WithError(err).WithField("client_id", clientID).Error("Streaming completion could not start")
		_ = session.emitTerminal(StateErrored, &Event{Type: EventError, Error: err.Error()})
		return err
	}

	stopHeartbeat := e.startHeartbeat(session)
	defer stopHeartbeat()

	start := time.Now()
	for event := range events {
		if event.Err != nil {
			e.logger.WithError(event.Err).WithField("client_id", clientID).Warn("Provider stream failed")
			_ = session.emitTerminal(StateErrored, &Event{Type: EventError, Error: event.Err.Error()})
			return event.Err
		}
		if event.Done {
			return e.finalize(ctx, session, conversationID, event, start)
		}
		if event.Delta == "" {
			continue
		}

		sent, sendErr := session.emit(&Event{Type: EventToken, Token: event.Delta})
		if sendErr != nil {
			session.markDisconnected()
			return fmt.Errorf("failed to relay token: %w", sendErr)
		}
		if !sent {
			// terminal already; cancellation will drain the provider
			return nil
		}
		session.accumulate(event.Delta)
	}

	// channel closed without a terminal event: treat as disconnect
	session.markDisconnected()
	return streamCtx.Err()
}

// finalize persists the assistant message and closes the session with
// a completion event. Persistence failure is fatal for the stream: the
// client must not be told a message id that does not exist.
func (e *Engine) finalize(ctx context.Context, session *Session, conversationID string, last *llm.StreamEvent, start time.Time) error {
	content := last.Content
	if content == "" {
		content = session.Accumulated()
	}

	persisted, err := e.messages.Append(ctx, &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        content,
		Metadata: &models.MessageMetadata{
			Model:            last.Model,
			Tokens:           session.TokenCount(),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	})
	if err != nil {
		e.logger.WithError(err).WithField("client_id", session.ClientID).Error("Failed to persist streamed message")
		_ = session.emitTerminal(StateErrored, &Event{Type: EventError, Error: "failed to persist generated message"})
		return err
	}

	return session.emitTerminal(StateCompleted, &Event{
		Type:       EventComplete,
		MessageID:  persisted.ID,
		Content:    content,
		Model:      last.Model,
		TokenCount: session.TokenCount(),
	})
}

// watchSink flips the session to DISCONNECTED the moment the client
// goes away, aborting any in-flight generation.
func (e *Engine) watchSink(session *Session) {
	<-session.sink.Done()
	if session.State().Terminal() {
		return
	}
	session.markDisconnected()
	e.remove(session.ClientID, session)
	e.logger.WithField("client_id", session.ClientID).Debug("Client disconnected")
}

// startHeartbeat emits keepalive events until the returned stop
// function is called. Suppressed automatically once the session is
// terminal.
func (e *Engine) startHeartbeat(session *Session) func() {
	if e.heartbeatInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(e.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, err := session.emit(&Event{Type: EventHeartbeat}); err != nil {
					session.markDisconnected()
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// remove drops the session from the registry if it is still the
// registered one for its client id.
func (e *Engine) remove(clientID string, session *Session) {
	e.mu.Lock()
	current, ok := e.sessions[clientID]
	removed := ok && current == session
	if removed {
		delete(e.sessions, clientID)
	}
	e.mu.Unlock()

	if removed && e.collector != nil {
		e.collector.ActiveSessions.Dec()
	}
}
