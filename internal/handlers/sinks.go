package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"dev.helix.chat/internal/streaming"
)

// sseSink pushes events as Server-Sent Events over one HTTP response.
// The request context's cancellation doubles as the disconnect signal.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    <-chan struct{}
}

func newSSESink(w http.ResponseWriter, done <-chan struct{}) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseSink{w: w, flusher: flusher, done: done}, nil
}

func (s *sseSink) Send(event *streaming.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Done() <-chan struct{} { return s.done }

// wsSink pushes events as JSON frames over a WebSocket connection.
// Done is closed by the read pump when the peer goes away.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn, done: make(chan struct{})}
}

func (s *wsSink) Send(event *streaming.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}

func (s *wsSink) Done() <-chan struct{} { return s.done }

func (s *wsSink) close() {
	s.once.Do(func() { close(s.done) })
}

// startReadPump begins draining incoming frames so close frames and
// errors are noticed promptly. Called after the handler has read the
// client's request frame.
func (s *wsSink) startReadPump() {
	go func() {
		defer s.close()
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
