package jassist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jassist-go/internal/database/sqlc"
)

// ErrJobNotRetryable is returned when a retry targets a job that is not failed or canceled.
var ErrJobNotRetryable = errors.New("only failed or canceled jobs can be retried")

// FileTranscriber is the part of Transcriber the job runner needs.
type FileTranscriber interface {
	TranscribeFile(ctx context.Context, userID, path string) *TranscriptionResult
}

// JobRunner drives TranscriptionJob rows through pending, processing and a terminal status.
type JobRunner struct {
	database    Database
	transcriber FileTranscriber
	queue       TaskQueue
	clock       Clock
	logger      Logger
	dryRun      bool
}

// NewJobRunner creates a JobRunner. queue may be nil when jobs only run inline.
// A dry-run runner never writes jobs: Transcribe returns an unsaved job and
// Submit and Retry are refused.
func NewJobRunner(database Database, transcriber FileTranscriber, queue TaskQueue, clock Clock, logger Logger, dryRun bool) *JobRunner {
	return &JobRunner{
		database:    database,
		transcriber: transcriber,
		queue:       queue,
		clock:       clock,
		logger:      logger,
		dryRun:      dryRun,
	}
}

// Transcribe creates a job for path and runs it in the calling goroutine.
func (r *JobRunner) Transcribe(ctx context.Context, job NewJob, path string) (*sqlc.TranscriptionJob, error) {
	if r.dryRun {
		return r.transcribeUnsaved(ctx, job, path), nil
	}
	created, err := r.database.CreateTranscriptionJob(job)
	if err != nil {
		return nil, fmt.Errorf("creating transcription job: %w", err)
	}
	ran, err := r.Run(ctx, created.ID, path)
	if err != nil {
		return nil, err
	}
	if ran == nil {
		return created, nil
	}
	return ran, nil
}

// transcribeUnsaved runs path through the transcriber and reports the outcome on a job
// that exists only in memory. Its ID is 0.
func (r *JobRunner) transcribeUnsaved(ctx context.Context, job NewJob, path string) *sqlc.TranscriptionJob {
	now := r.clock.Now()
	tj := &sqlc.TranscriptionJob{
		UserID:           job.UserID,
		FileID:           job.FileID,
		FileName:         job.FileName,
		DownloadRecordID: sql.NullString{String: job.DownloadRecordID, Valid: job.DownloadRecordID != ""},
		Status:           JobProcessing,
		Language:         job.Language,
		Model:            job.Model,
		ResultFormat:     job.ResultFormat,
		ContentLabel:     LabelUnlabeled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.record(tj, r.transcriber.TranscribeFile(ctx, job.UserID, path))
	r.logger.Info("dry run, job not saved", "path", path, "status", tj.Status)
	return tj
}

// record copies a transcription outcome onto job.
func (r *JobRunner) record(job *sqlc.TranscriptionJob, result *TranscriptionResult) {
	if result.Success {
		job.Status = JobCompleted
		job.Progress = 100
		job.CompletedAt = sql.NullTime{Time: r.clock.Now(), Valid: true}
		job.ResultPath = sql.NullString{String: result.OutputFile, Valid: result.OutputFile != ""}
		job.WordCount = int64(result.WordCount)
		job.DurationSeconds = result.Duration
		job.TranscriptContent = sql.NullString{String: result.Text, Valid: true}
		job.TranscriptSummary = sql.NullString{String: result.Summary, Valid: result.Summary != ""}
		job.ErrorMessage = sql.NullString{}
		return
	}
	job.Status = JobFailed
	job.ErrorMessage = sql.NullString{String: result.Error, Valid: true}
}

// Submit creates a pending job for path and hands it to the queue.
func (r *JobRunner) Submit(ctx context.Context, job NewJob, path string) (*sqlc.TranscriptionJob, error) {
	if r.dryRun {
		return nil, Invalidf("dry run cannot submit transcription jobs")
	}
	if r.queue == nil {
		return nil, Configf("no transcription queue configured")
	}
	created, err := r.database.CreateTranscriptionJob(job)
	if err != nil {
		return nil, fmt.Errorf("creating transcription job: %w", err)
	}
	if err := r.enqueue(ctx, created, path); err != nil {
		return nil, err
	}
	r.logger.Info("transcription submitted", "job_id", created.ID, "path", path)
	return created, nil
}

// Retry moves a failed or canceled job back to pending and enqueues it again.
func (r *JobRunner) Retry(ctx context.Context, jobID int64) (*sqlc.TranscriptionJob, error) {
	if r.dryRun {
		return nil, Invalidf("dry run cannot retry transcription jobs")
	}
	if r.queue == nil {
		return nil, Configf("no transcription queue configured")
	}
	job, err := r.database.RetryTranscriptionJob(jobID)
	if err != nil {
		return nil, fmt.Errorf("retrying job %d: %w", jobID, err)
	}
	if job == nil {
		existing, err := r.database.FindTranscriptionJob(jobID)
		if err != nil {
			return nil, fmt.Errorf("finding job %d: %w", jobID, err)
		}
		if existing == nil {
			return nil, nil
		}
		return existing, ErrJobNotRetryable
	}

	path, err := r.jobPath(job)
	if err != nil {
		return nil, err
	}
	if err := r.enqueue(ctx, job, path); err != nil {
		return nil, err
	}
	r.logger.Info("transcription retried", "job_id", job.ID, "retry_count", job.RetryCount)
	return job, nil
}

func (r *JobRunner) enqueue(ctx context.Context, job *sqlc.TranscriptionJob, path string) error {
	err := r.queue.Enqueue(ctx, TranscriptionTask{JobID: job.ID, UserID: job.UserID, Path: path})
	if err != nil {
		return fmt.Errorf("enqueueing job %d: %w", job.ID, err)
	}
	return nil
}

// jobPath is the local file a job transcribes: its download record's path, or the file id
// for jobs submitted from a local path.
func (r *JobRunner) jobPath(job *sqlc.TranscriptionJob) (string, error) {
	if !job.DownloadRecordID.Valid {
		return job.FileID, nil
	}
	rec, err := r.database.FindDownloadRecord(job.DownloadRecordID.String)
	if err != nil {
		return "", fmt.Errorf("finding download record: %w", err)
	}
	if rec == nil {
		return "", fmt.Errorf("download record %s not found", job.DownloadRecordID.String)
	}
	return rec.LocalPath, nil
}

// HandleTask is a TaskHandler for queue workers.
func (r *JobRunner) HandleTask(ctx context.Context, task TranscriptionTask) error {
	_, err := r.Run(ctx, task.JobID, task.Path)
	return err
}

// Run claims job id and transcribes path. A job that is not pending is left untouched
// and Run returns (nil, nil). The transcription outcome is written to the row, so a
// failed transcription is not an error here.
func (r *JobRunner) Run(ctx context.Context, id int64, path string) (*sqlc.TranscriptionJob, error) {
	if r.dryRun {
		return nil, Invalidf("dry run cannot run saved transcription jobs")
	}
	job, err := r.database.ClaimTranscriptionJob(id)
	if err != nil {
		return nil, fmt.Errorf("claiming job %d: %w", id, err)
	}
	if job == nil {
		r.logger.Info("job not pending, skipping", "job_id", id)
		return nil, nil
	}
	r.logger.Info("job claimed", "job_id", id, "path", path)

	r.record(job, r.transcriber.TranscribeFile(ctx, job.UserID, path))

	if err := r.database.UpdateTranscriptionJob(job); err != nil {
		return nil, fmt.Errorf("recording job %d outcome: %w", id, err)
	}
	r.logger.Info("job finished", "job_id", id, "status", job.Status)
	return job, nil
}
