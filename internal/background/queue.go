// Package background runs deferred work off the request path. The
// queue is bounded: callers that outrun the workers get an immediate
// rejection instead of unbounded buffering.
package background

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned by Enqueue when the buffer is at capacity.
var ErrQueueFull = errors.New("background queue is full")

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("background queue is closed")

// Task is one unit of deferred work. A returned error triggers a
// retry until the attempt limit is reached.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue executes tasks on a fixed worker pool with bounded buffering
// and per-task retry.
type Queue struct {
	tasks       chan Task
	workers     int
	maxAttempts int
	retryDelay  time.Duration
	logger      *logrus.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxAttempts sets how many times a failing task is run.
func WithMaxAttempts(n int) QueueOption {
	return func(q *Queue) { q.maxAttempts = n }
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) QueueOption {
	return func(q *Queue) { q.retryDelay = d }
}

// NewQueue creates a queue with the given worker count and buffer
// capacity.
func NewQueue(workers, capacity int, logger *logrus.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 64
	}
	q := &Queue{
		tasks:       make(chan Task, capacity),
		workers:     workers,
		maxAttempts: 3,
		retryDelay:  time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker pool. Workers exit when ctx is cancelled
// or the queue is stopped.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue submits a task without blocking.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of buffered tasks.
func (q *Queue) Pending() int {
	return len(q.tasks)
}

// Stop closes the queue and waits for the workers to drain it.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.execute(ctx, task)
		}
	}
}

func (q *Queue) execute(ctx context.Context, task Task) {
	var err error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		if err = task.Run(ctx); err == nil {
			return
		}
		if attempt == q.maxAttempts || ctx.Err() != nil {
			break
		}
		q.logger.WithError(err).WithFields(logrus.Fields{
			"task":    task.Name,
			"attempt": attempt,
		}).Debug("Background task failed, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	q.logger.WithError(err).WithField("task", task.Name).Warn("Background task gave up")
}
