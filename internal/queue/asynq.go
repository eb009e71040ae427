package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

const (
	// TaskTranscribe is the asynq task type for a TranscriptionTask.
	TaskTranscribe = "transcription:run"
	queueName      = "transcription"
)

// AsynqQueue stores tasks in redis through asynq so workers may run in another process.
type AsynqQueue struct {
	opt         asynq.RedisConnOpt
	client      *asynq.Client
	concurrency int
	maxRetry    int
	logger      jassist.Logger
}

var _ Queue = (*AsynqQueue)(nil)

// NewAsynqQueue connects to cfg.RedisURL.
func NewAsynqQueue(cfg config.QueueConfig, logger jassist.Logger) (*AsynqQueue, error) {
	if cfg.RedisURL == "" {
		return nil, jassist.Configf("queue redis_url is required for type asynq")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, jassist.Configf("invalid queue redis_url: %v", err)
	}
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &AsynqQueue{
		opt:         opt,
		client:      asynq.NewClient(opt),
		concurrency: concurrency,
		maxRetry:    cfg.MaxRetry,
		logger:      logger,
	}, nil
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task jassist.TranscriptionTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	info, err := q.client.EnqueueContext(ctx,
		asynq.NewTask(TaskTranscribe, body, asynq.Queue(queueName)),
		asynq.MaxRetry(q.maxRetry),
	)
	if err != nil {
		return fmt.Errorf("enqueueing task: %w", err)
	}
	q.logger.Debug("task enqueued", "job_id", task.JobID, "task_id", info.ID)
	return nil
}

// Run starts an asynq server and blocks until ctx is done.
// Validation and configuration failures are not retried.
func (q *AsynqQueue) Run(ctx context.Context, handler jassist.TaskHandler) error {
	srv := asynq.NewServer(q.opt, asynq.Config{
		Concurrency: q.concurrency,
		Queues:      map[string]int{queueName: 1},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTranscribe, func(ctx context.Context, t *asynq.Task) error {
		var task jassist.TranscriptionTask
		if err := json.Unmarshal(t.Payload(), &task); err != nil {
			return fmt.Errorf("decoding task: %w: %w", err, asynq.SkipRetry)
		}
		err := handler(ctx, task)
		if err == nil {
			return nil
		}
		q.logger.Error("task failed", "job_id", task.JobID, "error", err)
		var ve *jassist.ValidationError
		if errors.As(err, &ve) || jassist.IsConfigurationError(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	})

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("starting asynq server: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

func (q *AsynqQueue) Close() error {
	return q.client.Close()
}
