// Package usage keeps a bounded in-memory record of generation calls.
// The log is a fixed-size ring: old entries fall off instead of
// growing without bound.
package usage

import (
	"sync"
	"time"
)

// Record is one generation call's accounting.
type Record struct {
	ConversationID string        `json:"conversation_id"`
	Model          string        `json:"model"`
	PromptTokens   int           `json:"prompt_tokens"`
	OutputTokens   int           `json:"output_tokens"`
	Duration       time.Duration `json:"duration"`
	Streamed       bool          `json:"streamed"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Log is a concurrency-safe ring buffer of usage records.
type Log struct {
	mu      sync.Mutex
	entries []Record
	next    int
	full    bool
}

// NewLog creates a log holding up to capacity records.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 256
	}
	return &Log{entries: make([]Record, capacity)}
}

// Add records one call, evicting the oldest entry when full.
func (l *Log) Add(r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = r
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.entries)
	}
	return l.next
}

// Recent returns up to n records, newest first.
func (l *Log) Recent(n int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.next
	if l.full {
		count = len(l.entries)
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}

// Totals aggregates the retained records.
type Totals struct {
	Calls        int `json:"calls"`
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Summarize returns aggregate counts over the retained window.
func (l *Log) Summarize() Totals {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.next
	if l.full {
		count = len(l.entries)
	}
	t := Totals{Calls: count}
	for i := 0; i < count; i++ {
		t.PromptTokens += l.entries[i].PromptTokens
		t.OutputTokens += l.entries[i].OutputTokens
	}
	return t
}
