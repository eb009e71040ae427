package jassist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jassist-go/internal/database/sqlc"
)

// DefaultBatchSize is the number of jobs classified between batch checkpoints.
const DefaultBatchSize = 20

// BatchOptions selects the jobs of a classification batch.
type BatchOptions struct {
	Limit     int
	JobIDs    []int64
	Force     bool // include jobs that already carry a label
	DryRun    bool
	BatchSize int
}

// BatchResult summarizes a finished batch.
type BatchResult struct {
	BatchID    string `json:"batch_id"`
	Status     string `json:"status"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// ClassificationProcessor labels transcribed jobs through a Classifier.
type ClassificationProcessor struct {
	database   Database
	classifier Classifier
	clock      Clock
	idgen      IDGenerator
	logger     Logger
}

func NewClassificationProcessor(database Database, classifier Classifier, clock Clock, idgen IDGenerator, logger Logger) *ClassificationProcessor {
	return &ClassificationProcessor{
		database:   database,
		classifier: classifier,
		clock:      clock,
		idgen:      idgen,
		logger:     logger,
	}
}

// ProcessOne classifies job and, unless dryRun, writes its label. When batch is not nil its
// counters are updated in memory; the caller persists them. It reports whether the job succeeded.
func (p *ClassificationProcessor) ProcessOne(ctx context.Context, job *sqlc.TranscriptionJob, batch *sqlc.ClassificationBatch, dryRun bool) bool {
	ok := p.processOne(ctx, job, batch, dryRun)
	if batch != nil {
		batch.ProcessedRecords++
		if ok {
			batch.SuccessfulRecords++
		} else {
			batch.FailedRecords++
		}
	}
	return ok
}

func (p *ClassificationProcessor) processOne(ctx context.Context, job *sqlc.TranscriptionJob, batch *sqlc.ClassificationBatch, dryRun bool) bool {
	text := job.TranscriptContent.String
	if !job.TranscriptContent.Valid || text == "" {
		p.logger.Warn("job has no transcript content", "job_id", job.ID)
		return false
	}

	opts := ClassifyOptions{JobID: job.ID}
	if batch != nil {
		opts.BatchID = batch.BatchID
	}
	answer, err := p.classifier.ClassifyText(ctx, text, opts)
	if err != nil {
		p.logger.Error("classification failed", "job_id", job.ID, "error", err)
		return false
	}

	label := ParseLabel(answer)
	if dryRun {
		p.logger.Info("dry run, would label job", "job_id", job.ID, "label", label)
		return true
	}

	if err := p.database.UpdateTranscriptionJobLabel(job, label); err != nil {
		if errors.Is(err, ErrStaleJob) {
			p.logger.Warn("job changed while classifying, label not written", "job_id", job.ID)
		} else {
			p.logger.Error("writing label failed", "job_id", job.ID, "error", err)
		}
		return false
	}
	p.logger.Info("job labeled", "job_id", job.ID, "label", label)
	return true
}

// ClassifyJob classifies one completed job outside any batch. The returned job carries the
// new label; a nil job means it does not exist.
func (p *ClassificationProcessor) ClassifyJob(ctx context.Context, jobID int64, dryRun bool) (*sqlc.TranscriptionJob, bool, error) {
	job, err := p.database.FindTranscriptionJob(jobID)
	if err != nil {
		return nil, false, fmt.Errorf("finding job %d: %w", jobID, err)
	}
	if job == nil {
		return nil, false, nil
	}
	if job.Status != JobCompleted {
		return job, false, Invalidf("job %d is %s, only completed jobs can be classified", jobID, job.Status)
	}
	return job, p.ProcessOne(ctx, job, nil, dryRun), nil
}

// ProcessBatch classifies every selected job in pages of opts.BatchSize, checkpointing the
// batch row after each page. Once the batch row exists a result is always returned; on
// failure it is marked failed and carries the counts recovered from the batch's metrics.
func (p *ClassificationProcessor) ProcessBatch(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	batch := &sqlc.ClassificationBatch{
		BatchID:   p.idgen.New(),
		Status:    BatchPending,
		DryRun:    opts.DryRun,
		StartTime: p.clock.Now(),
	}
	if err := p.database.CreateClassificationBatch(batch); err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}

	batch.Status = BatchProcessing
	if err := p.database.UpdateClassificationBatch(batch); err != nil {
		return p.failBatch(batch, fmt.Errorf("starting batch: %w", err))
	}

	jobs, err := p.database.FindClassifiableJobs(JobSelection{IDs: opts.JobIDs, Force: opts.Force, Limit: opts.Limit})
	if err != nil {
		return p.failBatch(batch, fmt.Errorf("selecting jobs: %w", err))
	}
	batch.TotalRecords = int64(len(jobs))
	p.logger.Info("classification batch started", "batch_id", batch.BatchID, "jobs", len(jobs), "page_size", size, "dry_run", opts.DryRun)

	for start := 0; start < len(jobs); start += size {
		if err := ctx.Err(); err != nil {
			return p.failBatch(batch, err)
		}
		end := min(start+size, len(jobs))
		for _, job := range jobs[start:end] {
			p.ProcessOne(ctx, job, batch, opts.DryRun)
		}
		if err := p.database.UpdateClassificationBatch(batch); err != nil {
			return p.failBatch(batch, fmt.Errorf("checkpointing batch: %w", err))
		}
		p.logger.Info("batch page done", "batch_id", batch.BatchID, "processed", batch.ProcessedRecords, "of", batch.TotalRecords)
	}

	if summary, err := p.database.SummarizeBatchMetrics(batch.BatchID); err != nil {
		p.logger.Warn("summarizing batch metrics failed", "batch_id", batch.BatchID, "error", err)
	} else {
		batch.TotalTokens = summary.TotalTokens
		batch.TotalCostUsd = summary.TotalCostUsd
	}

	batch.Status = BatchCompleted
	batch.EndTime = sql.NullTime{Time: p.clock.Now(), Valid: true}
	if err := p.database.UpdateClassificationBatch(batch); err != nil {
		return batchResult(batch), fmt.Errorf("finishing batch: %w", err)
	}
	p.logger.Info("classification batch completed", "batch_id", batch.BatchID,
		"successful", batch.SuccessfulRecords, "failed", batch.FailedRecords)

	return batchResult(batch), nil
}

func batchResult(batch *sqlc.ClassificationBatch) *BatchResult {
	return &BatchResult{
		BatchID:    batch.BatchID,
		Status:     batch.Status,
		Total:      int(batch.TotalRecords),
		Successful: int(batch.SuccessfulRecords),
		Failed:     int(batch.FailedRecords),
		DryRun:     batch.DryRun,
	}
}

// failBatch marks batch failed with counts rebuilt from its recorded metrics. It returns the
// failed batch's result and cause.
func (p *ClassificationProcessor) failBatch(batch *sqlc.ClassificationBatch, cause error) (*BatchResult, error) {
	p.logger.Error("classification batch failed", "batch_id", batch.BatchID, "error", cause)

	if summary, err := p.database.SummarizeBatchMetrics(batch.BatchID); err == nil && summary.Calls > 0 {
		batch.ProcessedRecords = summary.Calls
		batch.SuccessfulRecords = summary.Successes
		batch.FailedRecords = summary.Calls - summary.Successes
		batch.TotalTokens = summary.TotalTokens
		batch.TotalCostUsd = summary.TotalCostUsd
	}
	batch.Status = BatchFailed
	batch.ErrorMessage = sql.NullString{String: cause.Error(), Valid: true}
	batch.EndTime = sql.NullTime{Time: p.clock.Now(), Valid: true}
	if err := p.database.UpdateClassificationBatch(batch); err != nil {
		p.logger.Error("recording batch failure failed", "batch_id", batch.BatchID, "error", err)
	}
	return batchResult(batch), cause
}
