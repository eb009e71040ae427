package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"jassist-go/internal/app"
	"jassist-go/internal/database/sqlc"
	"jassist-go/internal/jassist"
	"jassist-go/internal/metrics"
)

var errNotFound = errors.New("not found")

type submitRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Path   string `json:"path" binding:"required"`
}

type batchRequest struct {
	JobIDs    []int64 `json:"job_ids"`
	Limit     int     `json:"limit"`
	Force     bool    `json:"force"`
	DryRun    bool    `json:"dry_run"`
	BatchSize int     `json:"batch_size"`
}

// jobResponse is the wire form of a transcription job.
type jobResponse struct {
	ID               int64      `json:"id"`
	UserID           string     `json:"user_id"`
	FileID           string     `json:"file_id"`
	FileName         string     `json:"file_name"`
	DownloadRecordID string     `json:"download_record_id,omitempty"`
	Status           string     `json:"status"`
	Language         string     `json:"language,omitempty"`
	Model            string     `json:"model"`
	Progress         int64      `json:"progress"`
	ResultPath       string     `json:"result_path,omitempty"`
	ResultFormat     string     `json:"result_format"`
	WordCount        int64      `json:"word_count"`
	DurationSeconds  float64    `json:"duration_seconds"`
	Summary          string     `json:"summary,omitempty"`
	ContentLabel     string     `json:"content_label,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	RetryCount       int64      `json:"retry_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func newJobResponse(job *sqlc.TranscriptionJob) jobResponse {
	r := jobResponse{
		ID:               job.ID,
		UserID:           job.UserID,
		FileID:           job.FileID,
		FileName:         job.FileName,
		DownloadRecordID: job.DownloadRecordID.String,
		Status:           job.Status,
		Language:         job.Language,
		Model:            job.Model,
		Progress:         job.Progress,
		ResultPath:       job.ResultPath.String,
		ResultFormat:     job.ResultFormat,
		WordCount:        job.WordCount,
		DurationSeconds:  job.DurationSeconds,
		Summary:          job.TranscriptSummary.String,
		ContentLabel:     job.ContentLabel,
		ErrorMessage:     job.ErrorMessage.String,
		RetryCount:       job.RetryCount,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
	if job.CompletedAt.Valid {
		at := job.CompletedAt.Time
		r.CompletedAt = &at
	}
	return r
}

type batchResponse struct {
	BatchID           string     `json:"batch_id"`
	Status            string     `json:"status"`
	TotalRecords      int64      `json:"total_records"`
	ProcessedRecords  int64      `json:"processed_records"`
	SuccessfulRecords int64      `json:"successful_records"`
	FailedRecords     int64      `json:"failed_records"`
	TotalTokens       int64      `json:"total_tokens"`
	TotalCostUSD      float64    `json:"total_cost_usd"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	DryRun            bool       `json:"dry_run"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
}

func newBatchResponse(b *sqlc.ClassificationBatch) batchResponse {
	r := batchResponse{
		BatchID:           b.BatchID,
		Status:            b.Status,
		TotalRecords:      b.TotalRecords,
		ProcessedRecords:  b.ProcessedRecords,
		SuccessfulRecords: b.SuccessfulRecords,
		FailedRecords:     b.FailedRecords,
		TotalTokens:       b.TotalTokens,
		TotalCostUSD:      b.TotalCostUsd,
		ErrorMessage:      b.ErrorMessage.String,
		DryRun:            b.DryRun,
		StartTime:         b.StartTime,
	}
	if b.EndTime.Valid {
		at := b.EndTime.Time
		r.EndTime = &at
	}
	return r
}

func (s *Server) runDownloads(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("force"))
	res, err := s.backend.RunDownloads(c.Request.Context(), c.Param("user"), force)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	out := app.Result{Success: res.Success, Data: res, Stats: res.Stats}
	if !res.Success {
		out.Error = res.Message
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) downloadFile(c *gin.Context) {
	res, err := s.backend.DownloadFile(c.Request.Context(), c.Param("user"), c.Param("fileID"))
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.Result{Success: res.Success, Data: res, Error: res.Error})
}

func (s *Server) downloadStatus(c *gin.Context) {
	status, err := s.backend.DownloadStatus(c.Param("id"))
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	if status.Status == jassist.DownloadNotFound {
		s.respondWithError(c, fmt.Errorf("download record %s: %w", c.Param("id"), errNotFound))
		return
	}
	c.JSON(http.StatusOK, app.OK(status))
}

func (s *Server) submitTranscription(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, app.Failed(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	job, err := s.backend.SubmitTranscription(c.Request.Context(), req.UserID, req.Path)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, app.OK(gin.H{"job_id": job.ID, "status": job.Status}))
}

func (s *Server) transcriptionJob(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	job, err := s.backend.TranscriptionJob(id)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	if job == nil {
		s.respondWithError(c, fmt.Errorf("job %d: %w", id, errNotFound))
		return
	}
	c.JSON(http.StatusOK, app.OK(newJobResponse(job)))
}

func (s *Server) retryTranscription(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	job, err := s.backend.RetryTranscription(c.Request.Context(), id)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	if job == nil {
		s.respondWithError(c, fmt.Errorf("job %d: %w", id, errNotFound))
		return
	}
	c.JSON(http.StatusAccepted, app.OK(newJobResponse(job)))
}

func (s *Server) transcriptionResult(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	res, err := s.backend.TranscriptionResult(id)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	if res == nil {
		s.respondWithError(c, fmt.Errorf("job %d: %w", id, errNotFound))
		return
	}
	c.JSON(http.StatusOK, app.OK(res))
}

func (s *Server) classifyJob(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	job, labeled, err := s.backend.ClassifyJob(c.Request.Context(), id)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	if job == nil {
		s.respondWithError(c, fmt.Errorf("job %d: %w", id, errNotFound))
		return
	}
	out := app.Result{Success: labeled, Data: gin.H{"job_id": job.ID, "content_label": job.ContentLabel}}
	if !labeled {
		out.Error = fmt.Sprintf("job %d could not be classified", id)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) classifyBatch(c *gin.Context) {
	var req batchRequest
	// An empty body selects every unlabeled job.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, app.Failed(fmt.Errorf("invalid request body: %w", err)))
			return
		}
	}
	res, err := s.backend.ClassifyBatch(c.Request.Context(), jassist.BatchOptions{
		JobIDs:    req.JobIDs,
		Limit:     req.Limit,
		Force:     req.Force,
		DryRun:    req.DryRun,
		BatchSize: req.BatchSize,
	})
	if err != nil && res == nil {
		s.respondWithError(c, err)
		return
	}
	out := app.OK(res)
	if err != nil {
		// The batch ran partway; report the recovered counts alongside the failure.
		s.logger.Error("classification batch failed", "batch_id", res.BatchID, "error", err)
		out = app.Failed(err)
		out.Data = res
	}
	c.JSON(http.StatusOK, out.WithStats(gin.H{
		"total":      res.Total,
		"successful": res.Successful,
		"failed":     res.Failed,
	}))
}

func (s *Server) classificationBatch(c *gin.Context) {
	batch, err := s.backend.ClassificationBatch(c.Param("id"))
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	if batch == nil {
		s.respondWithError(c, fmt.Errorf("batch %s: %w", c.Param("id"), errNotFound))
		return
	}
	c.JSON(http.StatusOK, app.OK(newBatchResponse(batch)))
}

func (s *Server) usage(c *gin.Context) {
	r, err := metrics.ParseDateRange(c.Query("start"), c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, app.Failed(err))
		return
	}
	report, err := s.backend.Usage(c.Param("user"), r)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.OK(report))
}

// jobID parses the :id parameter, answering 400 itself when it is not a positive integer.
func (s *Server) jobID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, app.Failed(fmt.Errorf("invalid job id %q", c.Param("id"))))
		return 0, false
	}
	return id, true
}

func (s *Server) respondWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, app.Failed(err))
}

func statusFor(err error) int {
	var ve *jassist.ValidationError
	switch {
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, jassist.ErrJobNotRetryable), errors.Is(err, jassist.ErrStaleJob):
		return http.StatusConflict
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case jassist.IsConfigurationError(err):
		return http.StatusServiceUnavailable
	}
	if _, ok := jassist.AsTransportError(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
