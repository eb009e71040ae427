package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

func TestAsynqQueue_RoundTrip(t *testing.T) {
	url := os.Getenv("JASSIST_TEST_REDIS_URL")
	if url == "" {
		t.Skip("JASSIST_TEST_REDIS_URL not set")
	}

	q, err := NewAsynqQueue(config.QueueConfig{Type: "asynq", RedisURL: url, Concurrency: 1}, nil)
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan jassist.TranscriptionTask, 1)
	go q.Run(ctx, func(ctx context.Context, task jassist.TranscriptionTask) error {
		got <- task
		return nil
	})

	want := jassist.TranscriptionTask{JobID: 42, UserID: "u1", Path: "/tmp/a.mp3"}
	require.NoError(t, q.Enqueue(ctx, want))

	select {
	case task := <-got:
		assert.Equal(t, want, task)
	case <-time.After(10 * time.Second):
		t.Fatal("task not delivered")
	}
}

func TestNewAsynqQueue_InvalidURL(t *testing.T) {
	_, err := NewAsynqQueue(config.QueueConfig{Type: "asynq", RedisURL: "http://nope"}, nil)
	assert.True(t, jassist.IsConfigurationError(err))
}
