package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

func TestMemoryQueue_DeliversEveryTask(t *testing.T) {
	q := NewMemoryQueue(3, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[int64]bool{}
	var wg sync.WaitGroup
	wg.Add(10)

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, func(ctx context.Context, task jassist.TranscriptionTask) error {
			mu.Lock()
			seen[task.JobID] = true
			mu.Unlock()
			wg.Done()
			return nil
		})
	}()

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, q.Enqueue(ctx, jassist.TranscriptionTask{JobID: i, UserID: "u1", Path: "a.mp3"}))
	}
	wg.Wait()
	cancel()
	<-done

	assert.Len(t, seen, 10)
}

func TestMemoryQueue_HandlerErrorDoesNotStopWorkers(t *testing.T) {
	q := NewMemoryQueue(1, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan int64, 2)
	go q.Run(ctx, func(ctx context.Context, task jassist.TranscriptionTask) error {
		handled <- task.JobID
		return errors.New("boom")
	})

	require.NoError(t, q.Enqueue(ctx, jassist.TranscriptionTask{JobID: 1}))
	require.NoError(t, q.Enqueue(ctx, jassist.TranscriptionTask{JobID: 2}))

	for _, want := range []int64{1, 2} {
		select {
		case got := <-handled:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("task %d not handled", want)
		}
	}
}

func TestMemoryQueue_Close(t *testing.T) {
	q := NewMemoryQueue(1, 0, nil)

	stopped := make(chan struct{})
	go func() {
		q.Run(context.Background(), func(context.Context, jassist.TranscriptionTask) error { return nil })
		close(stopped)
	}()

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.ErrorIs(t, q.Enqueue(context.Background(), jassist.TranscriptionTask{JobID: 1}), ErrClosed)
}

func TestMemoryQueue_EnqueueRespectsContext(t *testing.T) {
	q := NewMemoryQueue(1, 1, nil)
	require.NoError(t, q.Enqueue(context.Background(), jassist.TranscriptionTask{JobID: 1}))
	assert.Equal(t, 1, q.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, jassist.TranscriptionTask{JobID: 2}), context.DeadlineExceeded)
}

func TestNewQueueFromConfig(t *testing.T) {
	q, err := NewQueueFromConfig(config.QueueConfig{Type: "memory", Concurrency: 2}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryQueue{}, q)

	_, err = NewQueueFromConfig(config.QueueConfig{Type: "asynq"}, nil)
	assert.True(t, jassist.IsConfigurationError(err))

	_, err = NewQueueFromConfig(config.QueueConfig{Type: "sqs"}, nil)
	assert.Error(t, err)
}
