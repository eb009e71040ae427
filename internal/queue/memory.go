package queue

import (
	"context"
	"sync"

	"jassist-go/internal/jassist"
)

// DefaultBuffer is the number of tasks a MemoryQueue holds before Enqueue blocks.
const DefaultBuffer = 64

// MemoryQueue is an in-process queue drained by a fixed worker pool.
// Tasks still buffered when the process exits are lost; their jobs stay pending.
type MemoryQueue struct {
	tasks       chan jassist.TranscriptionTask
	concurrency int
	logger      jassist.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a MemoryQueue. Non-positive values use 1 worker and DefaultBuffer.
func NewMemoryQueue(concurrency, buffer int, logger jassist.Logger) *MemoryQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	return &MemoryQueue{
		tasks:       make(chan jassist.TranscriptionTask, buffer),
		concurrency: concurrency,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task jassist.TranscriptionTask) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	select {
	case q.tasks <- task:
		q.logger.Debug("task enqueued", "job_id", task.JobID)
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the worker pool and blocks until ctx is done or the queue is closed.
// Handler errors are logged; the job row already records the failure.
func (q *MemoryQueue) Run(ctx context.Context, handler jassist.TaskHandler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case task := <-q.tasks:
					if err := handler(ctx, task); err != nil {
						q.logger.Error("task failed", "job_id", task.JobID, "error", err)
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Close stops Run and rejects further tasks.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

// Len returns the number of buffered tasks.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}
