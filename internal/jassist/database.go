package jassist

import (
	"time"

	"jassist-go/internal/database/sqlc"
)

// Job statuses for the transcription phase.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCanceled   = "canceled"
)

// Batch statuses.
const (
	BatchPending    = "pending"
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
)

// NewJob carries the fields a caller chooses when creating a TranscriptionJob.
type NewJob struct {
	UserID           string
	FileID           string
	FileName         string
	DownloadRecordID string
	Language         string
	Model            string
	ResultFormat     string
}

// JobSelection restricts which completed jobs a classification batch picks up.
type JobSelection struct {
	IDs   []int64
	Force bool
	Limit int
}

// Database is the job/record store. Lookups return (nil, nil) when the row does not exist.
// Writes to transcription_jobs are guarded by the row's version: an update carrying a stale
// version returns ErrStaleJob instead of overwriting.
type Database interface {
	// Operations

	CreateOperation(operation, parameters string) (*sqlc.Operation, error)
	FinishOperation(id int64, status string) error
	ListOperations(limit int) ([]*sqlc.Operation, error)

	// Drive run state

	// GetLastRun returns nil when the user has never completed a run.
	GetLastRun(userID string) (*time.Time, error)
	SetLastRun(userID string, at time.Time) error

	// Download records

	CreateDownloadRecord(rec *sqlc.DownloadRecord) error
	FindDownloadRecord(id string) (*sqlc.DownloadRecord, error)

	// MarkDownloadRecordDeleted records that the source file of download id was deleted.
	MarkDownloadRecordDeleted(id string) error

	// Transcription jobs

	CreateTranscriptionJob(job NewJob) (*sqlc.TranscriptionJob, error)
	FindTranscriptionJob(id int64) (*sqlc.TranscriptionJob, error)

	// ClaimTranscriptionJob moves a pending job to processing and returns the updated row.
	// It returns (nil, nil) when the job is not pending, so only one caller wins.
	ClaimTranscriptionJob(id int64) (*sqlc.TranscriptionJob, error)

	// UpdateTranscriptionJob persists the mutable fields of job and bumps job.Version.
	UpdateTranscriptionJob(job *sqlc.TranscriptionJob) error

	// UpdateTranscriptionJobLabel writes the content label and bumps job.Version.
	UpdateTranscriptionJobLabel(job *sqlc.TranscriptionJob, label string) error

	// RetryTranscriptionJob moves a failed or canceled job back to pending.
	// It returns (nil, nil) when the job is in any other state.
	RetryTranscriptionJob(id int64) (*sqlc.TranscriptionJob, error)

	// FindClassifiableJobs returns completed jobs ordered by id.
	FindClassifiableJobs(sel JobSelection) ([]*sqlc.TranscriptionJob, error)

	// Classification batches and metrics

	CreateClassificationBatch(batch *sqlc.ClassificationBatch) error
	FindClassificationBatch(batchID string) (*sqlc.ClassificationBatch, error)
	UpdateClassificationBatch(batch *sqlc.ClassificationBatch) error
	CreateClassificationMetric(metric *sqlc.ClassificationMetric) error
	SummarizeBatchMetrics(batchID string) (*sqlc.SummarizeBatchMetricsRow, error)

	// Classification sessions

	FindClassificationSession(name string) (*sqlc.ClassificationSession, error)
	SaveClassificationSession(session *sqlc.ClassificationSession) error

	// CheckMigrations returns an error when the schema is not at the latest version.
	CheckMigrations() error

	Close() error
}
