package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jassist-go/internal/database/migrations"
	"jassist-go/internal/database/sqlc"
	"jassist-go/internal/jassist"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements jassist.Database on SQLite.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
	clock   jassist.Clock
}

var _ jassist.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens the database at path (a file or ":memory:").
// clock stamps created/updated columns; nil means the real clock.
func NewSQLiteDatabase(path string, clock jassist.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteDatabaseFromDB(db, clock), nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection opened with OpenConnection.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock jassist.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = jassist.RealClock{}
	}
	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		clock:   clock,
	}
}

// OpenConnection opens a SQLite connection with foreign keys enforced and a busy timeout,
// so queue workers and the API server can share one file.
// In-memory databases are pinned to a single connection; each new connection would
// otherwise see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate applies pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

func (s *SQLiteDatabase) now() time.Time {
	return s.clock.Now().UTC()
}

// Operations

func (s *SQLiteDatabase) CreateOperation(operation, parameters string) (*sqlc.Operation, error) {
	op, err := s.queries.InsertOperation(context.Background(), sqlc.InsertOperationParams{
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("inserting operation: %w", err)
	}
	return &op, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	err := s.queries.FinishOperation(context.Background(), sqlc.FinishOperationParams{
		Status:     status,
		FinishedAt: sql.NullTime{Time: s.now(), Valid: true},
		ID:         id,
	})
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*sqlc.Operation, error) {
	ops, err := s.queries.ListOperations(context.Background(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	result := make([]*sqlc.Operation, len(ops))
	for i := range ops {
		result[i] = &ops[i]
	}
	return result, nil
}

// Drive run state

func (s *SQLiteDatabase) GetLastRun(userID string) (*time.Time, error) {
	st, err := s.queries.GetDriveRunState(context.Background(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting last run: %w", err)
	}
	return &st.LastRun, nil
}

func (s *SQLiteDatabase) SetLastRun(userID string, at time.Time) error {
	err := s.queries.UpsertDriveRunState(context.Background(), sqlc.UpsertDriveRunStateParams{
		UserID:  userID,
		LastRun: at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("setting last run: %w", err)
	}
	return nil
}

// Download records

func (s *SQLiteDatabase) CreateDownloadRecord(rec *sqlc.DownloadRecord) error {
	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = s.now()
	}
	err := s.queries.InsertDownloadRecord(context.Background(), sqlc.InsertDownloadRecordParams{
		ID:                rec.ID,
		UserID:            rec.UserID,
		Filename:          rec.Filename,
		SourceID:          rec.SourceID,
		SourceFolder:      rec.SourceFolder,
		LocalPath:         rec.LocalPath,
		FileSize:          rec.FileSize,
		DeletedFromSource: rec.DeletedFromSource,
		DownloadedAt:      rec.DownloadedAt,
	})
	if err != nil {
		return fmt.Errorf("inserting download record: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) MarkDownloadRecordDeleted(id string) error {
	n, err := s.queries.MarkDownloadRecordDeleted(context.Background(), id)
	if err != nil {
		return fmt.Errorf("marking download record deleted: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("download record %s not found", id)
	}
	return nil
}

func (s *SQLiteDatabase) FindDownloadRecord(id string) (*sqlc.DownloadRecord, error) {
	rec, err := s.queries.GetDownloadRecord(context.Background(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding download record: %w", err)
	}
	return &rec, nil
}

// Transcription jobs

func (s *SQLiteDatabase) CreateTranscriptionJob(job jassist.NewJob) (*sqlc.TranscriptionJob, error) {
	now := s.now()
	row, err := s.queries.InsertTranscriptionJob(context.Background(), sqlc.InsertTranscriptionJobParams{
		UserID:           job.UserID,
		FileID:           job.FileID,
		FileName:         job.FileName,
		DownloadRecordID: nullString(job.DownloadRecordID),
		Language:         job.Language,
		Model:            job.Model,
		ResultFormat:     job.ResultFormat,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting transcription job: %w", err)
	}
	return &row, nil
}

func (s *SQLiteDatabase) FindTranscriptionJob(id int64) (*sqlc.TranscriptionJob, error) {
	job, err := s.queries.GetTranscriptionJob(context.Background(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding transcription job: %w", err)
	}
	return &job, nil
}

func (s *SQLiteDatabase) ClaimTranscriptionJob(id int64) (*sqlc.TranscriptionJob, error) {
	n, err := s.queries.ClaimTranscriptionJob(context.Background(), sqlc.ClaimTranscriptionJobParams{
		Progress:  10,
		UpdatedAt: s.now(),
		ID:        id,
	})
	if err != nil {
		return nil, fmt.Errorf("claiming transcription job: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.FindTranscriptionJob(id)
}

func (s *SQLiteDatabase) UpdateTranscriptionJob(job *sqlc.TranscriptionJob) error {
	now := s.now()
	n, err := s.queries.UpdateTranscriptionJob(context.Background(), sqlc.UpdateTranscriptionJobParams{
		Status:            job.Status,
		Progress:          job.Progress,
		ResultPath:        job.ResultPath,
		ResultFormat:      job.ResultFormat,
		WordCount:         job.WordCount,
		DurationSeconds:   job.DurationSeconds,
		TranscriptContent: job.TranscriptContent,
		TranscriptSummary: job.TranscriptSummary,
		ErrorMessage:      job.ErrorMessage,
		UpdatedAt:         now,
		CompletedAt:       job.CompletedAt,
		ID:                job.ID,
		Version:           job.Version,
	})
	if err != nil {
		return fmt.Errorf("updating transcription job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("updating transcription job %d: %w", job.ID, jassist.ErrStaleJob)
	}
	job.Version++
	job.UpdatedAt = now
	return nil
}

func (s *SQLiteDatabase) UpdateTranscriptionJobLabel(job *sqlc.TranscriptionJob, label string) error {
	now := s.now()
	n, err := s.queries.UpdateTranscriptionJobLabel(context.Background(), sqlc.UpdateTranscriptionJobLabelParams{
		ContentLabel: label,
		UpdatedAt:    now,
		ID:           job.ID,
		Version:      job.Version,
	})
	if err != nil {
		return fmt.Errorf("updating job label: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("updating job label %d: %w", job.ID, jassist.ErrStaleJob)
	}
	job.ContentLabel = label
	job.Version++
	job.UpdatedAt = now
	return nil
}

func (s *SQLiteDatabase) RetryTranscriptionJob(id int64) (*sqlc.TranscriptionJob, error) {
	n, err := s.queries.ResetTranscriptionJob(context.Background(), sqlc.ResetTranscriptionJobParams{
		UpdatedAt: s.now(),
		ID:        id,
	})
	if err != nil {
		return nil, fmt.Errorf("resetting transcription job: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.FindTranscriptionJob(id)
}

func (s *SQLiteDatabase) FindClassifiableJobs(sel jassist.JobSelection) ([]*sqlc.TranscriptionJob, error) {
	// SQLite treats a negative LIMIT as no limit.
	limit := int64(-1)
	if sel.Limit > 0 {
		limit = int64(sel.Limit)
	}

	var (
		jobs []sqlc.TranscriptionJob
		err  error
	)
	if len(sel.IDs) > 0 {
		jobs, err = s.queries.ListClassifiableJobsByIDs(context.Background(), sqlc.ListClassifiableJobsByIDsParams{
			Force: sel.Force,
			Ids:   sel.IDs,
			Limit: limit,
		})
	} else {
		jobs, err = s.queries.ListClassifiableJobs(context.Background(), sqlc.ListClassifiableJobsParams{
			Force: sel.Force,
			Limit: limit,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("listing classifiable jobs: %w", err)
	}

	result := make([]*sqlc.TranscriptionJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// Classification batches and metrics

func (s *SQLiteDatabase) CreateClassificationBatch(batch *sqlc.ClassificationBatch) error {
	if batch.StartTime.IsZero() {
		batch.StartTime = s.now()
	}
	if batch.Status == "" {
		batch.Status = jassist.BatchPending
	}
	err := s.queries.InsertClassificationBatch(context.Background(), sqlc.InsertClassificationBatchParams{
		BatchID:   batch.BatchID,
		Status:    batch.Status,
		DryRun:    batch.DryRun,
		StartTime: batch.StartTime,
	})
	if err != nil {
		return fmt.Errorf("inserting classification batch: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindClassificationBatch(batchID string) (*sqlc.ClassificationBatch, error) {
	b, err := s.queries.GetClassificationBatch(context.Background(), batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding classification batch: %w", err)
	}
	return &b, nil
}

func (s *SQLiteDatabase) UpdateClassificationBatch(batch *sqlc.ClassificationBatch) error {
	err := s.queries.UpdateClassificationBatch(context.Background(), sqlc.UpdateClassificationBatchParams{
		Status:            batch.Status,
		TotalRecords:      batch.TotalRecords,
		ProcessedRecords:  batch.ProcessedRecords,
		SuccessfulRecords: batch.SuccessfulRecords,
		FailedRecords:     batch.FailedRecords,
		TotalTokens:       batch.TotalTokens,
		TotalCostUsd:      batch.TotalCostUsd,
		ErrorMessage:      batch.ErrorMessage,
		EndTime:           batch.EndTime,
		BatchID:           batch.BatchID,
	})
	if err != nil {
		return fmt.Errorf("updating classification batch: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) CreateClassificationMetric(metric *sqlc.ClassificationMetric) error {
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = s.now()
	}
	err := s.queries.InsertClassificationMetric(context.Background(), sqlc.InsertClassificationMetricParams{
		BatchID:          metric.BatchID,
		JobID:            metric.JobID,
		PromptTokens:     metric.PromptTokens,
		CompletionTokens: metric.CompletionTokens,
		TotalTokens:      metric.TotalTokens,
		ProcessingTimeMs: metric.ProcessingTimeMs,
		EstimatedCostUsd: metric.EstimatedCostUsd,
		Success:          metric.Success,
		ErrorMessage:     metric.ErrorMessage,
		ModelUsed:        metric.ModelUsed,
		CreatedAt:        metric.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("inserting classification metric: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) SummarizeBatchMetrics(batchID string) (*sqlc.SummarizeBatchMetricsRow, error) {
	row, err := s.queries.SummarizeBatchMetrics(context.Background(), nullString(batchID))
	if err != nil {
		return nil, fmt.Errorf("summarizing batch metrics: %w", err)
	}
	return &row, nil
}

// Classification sessions

func (s *SQLiteDatabase) FindClassificationSession(name string) (*sqlc.ClassificationSession, error) {
	sess, err := s.queries.GetClassificationSession(context.Background(), name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding classification session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteDatabase) SaveClassificationSession(session *sqlc.ClassificationSession) error {
	session.UpdatedAt = s.now()
	err := s.queries.UpsertClassificationSession(context.Background(), sqlc.UpsertClassificationSessionParams{
		Name:            session.Name,
		AssistantID:     session.AssistantID,
		ThreadID:        session.ThreadID,
		ThreadCreatedAt: session.ThreadCreatedAt,
		UpdatedAt:       session.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("saving classification session: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
