// Package queue hands transcription tasks from submitters to workers.
package queue

import (
	"context"
	"errors"
	"fmt"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Queue is a TaskQueue whose tasks are consumed by Run.
type Queue interface {
	jassist.TaskQueue

	// Run dispatches tasks to handler until ctx is done.
	Run(ctx context.Context, handler jassist.TaskHandler) error

	Close() error
}

// NewQueueFromConfig creates a Queue based on the configuration type.
func NewQueueFromConfig(cfg config.QueueConfig, logger jassist.Logger) (Queue, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryQueue(cfg.Concurrency, 0, logger), nil
	case "asynq":
		return NewAsynqQueue(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown queue type: %q", cfg.Type)
	}
}
