package jassist

import "context"

// TranscriptionTask asks a worker to run one pending TranscriptionJob.
type TranscriptionTask struct {
	JobID  int64  `json:"job_id"`
	UserID string `json:"user_id"`
	Path   string `json:"path"`
}

// TaskQueue hands transcription work to a worker. The job row stays the source of truth for status.
type TaskQueue interface {
	Enqueue(ctx context.Context, task TranscriptionTask) error
}

// TaskHandler processes one dequeued task.
type TaskHandler func(ctx context.Context, task TranscriptionTask) error
