package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jassist-go/internal/app"
	"jassist-go/internal/config"
	"jassist-go/internal/database/sqlc"
	"jassist-go/internal/jassist"
	"jassist-go/internal/metrics"
	"jassist-go/internal/testutil"
)

type fakeBackend struct {
	jobs    map[int64]*sqlc.TranscriptionJob
	batches map[string]*sqlc.ClassificationBatch

	runErr     error
	retryErr   error
	submitErr  error
	batchErr   error
	lastForce  bool
	lastBatch  jassist.BatchOptions
	lastRange  metrics.DateRange
	submitted  []string
	classified []int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		jobs: map[int64]*sqlc.TranscriptionJob{
			1: {ID: 1, UserID: "alice", FileName: "memo.mp3", Status: jassist.JobCompleted, Model: "whisper-1",
				TranscriptContent: sql.NullString{String: "hello", Valid: true}, ContentLabel: "note"},
			2: {ID: 2, UserID: "alice", FileName: "other.mp3", Status: jassist.JobFailed,
				ErrorMessage: sql.NullString{String: "boom", Valid: true}},
		},
		batches: map[string]*sqlc.ClassificationBatch{
			"b-1": {BatchID: "b-1", Status: jassist.BatchCompleted, TotalRecords: 3, SuccessfulRecords: 3},
		},
	}
}

func (f *fakeBackend) RunDownloads(_ context.Context, userID string, force bool) (*jassist.DownloadRunResult, error) {
	f.lastForce = force
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &jassist.DownloadRunResult{
		Success: true,
		Message: "Processed 1 folders",
		Stats:   jassist.DownloadStats{FoldersProcessed: 1, FilesDownloaded: 2},
	}, nil
}

func (f *fakeBackend) DownloadFile(_ context.Context, userID, fileID string) (*jassist.FileDownloadResult, error) {
	if fileID == "missing" {
		return &jassist.FileDownloadResult{Success: false, FileID: fileID, Error: "file not found"}, nil
	}
	return &jassist.FileDownloadResult{Success: true, FileID: fileID, FileName: "memo.mp3"}, nil
}

func (f *fakeBackend) DownloadStatus(recordID string) (*jassist.DownloadStatus, error) {
	if recordID == "rec-1" {
		return &jassist.DownloadStatus{Status: jassist.DownloadCompleted, FileName: "memo.mp3"}, nil
	}
	return &jassist.DownloadStatus{Status: jassist.DownloadNotFound}, nil
}

func (f *fakeBackend) SubmitTranscription(_ context.Context, userID, path string) (*sqlc.TranscriptionJob, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, userID+":"+path)
	return &sqlc.TranscriptionJob{ID: 9, UserID: userID, FileID: path, Status: jassist.JobPending}, nil
}

func (f *fakeBackend) TranscriptionJob(id int64) (*sqlc.TranscriptionJob, error) {
	return f.jobs[id], nil
}

func (f *fakeBackend) RetryTranscription(_ context.Context, id int64) (*sqlc.TranscriptionJob, error) {
	if f.retryErr != nil {
		return f.jobs[id], f.retryErr
	}
	job := f.jobs[id]
	if job == nil {
		return nil, nil
	}
	retried := *job
	retried.Status = jassist.JobPending
	retried.RetryCount++
	return &retried, nil
}

func (f *fakeBackend) TranscriptionResult(id int64) (*app.TranscriptResult, error) {
	job := f.jobs[id]
	if job == nil {
		return nil, nil
	}
	if job.Status != jassist.JobCompleted {
		return nil, jassist.Invalidf("job %d is %s, no result yet", id, job.Status)
	}
	return &app.TranscriptResult{JobID: id, Format: "txt", Content: job.TranscriptContent.String}, nil
}

func (f *fakeBackend) ClassifyJob(_ context.Context, id int64) (*sqlc.TranscriptionJob, bool, error) {
	f.classified = append(f.classified, id)
	job := f.jobs[id]
	if job == nil {
		return nil, false, nil
	}
	if job.Status != jassist.JobCompleted {
		return job, false, jassist.Invalidf("job %d is %s, only completed jobs can be classified", id, job.Status)
	}
	return job, true, nil
}

func (f *fakeBackend) ClassifyBatch(_ context.Context, opts jassist.BatchOptions) (*jassist.BatchResult, error) {
	f.lastBatch = opts
	if f.batchErr != nil {
		return &jassist.BatchResult{BatchID: "b-2", Status: jassist.BatchFailed, Total: 5, Successful: 2, Failed: 1}, f.batchErr
	}
	return &jassist.BatchResult{BatchID: "b-2", Status: jassist.BatchCompleted, Total: 2, Successful: 2, DryRun: opts.DryRun}, nil
}

func (f *fakeBackend) ClassificationBatch(id string) (*sqlc.ClassificationBatch, error) {
	return f.batches[id], nil
}

func (f *fakeBackend) Usage(userID string, r metrics.DateRange) (*metrics.UsageReport, error) {
	f.lastRange = r
	return &metrics.UsageReport{TotalJobs: 4, SuccessfulJobs: 3, FailedJobs: 1, DateRange: r}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Stats   json.RawMessage `json:"stats"`
}

func newTestServer(t *testing.T, backend Backend) *Server {
	t.Helper()
	return NewServer(config.ServerConfig{Mode: gin.TestMode}, backend, nil)
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	rec, _ := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestDownloads(t *testing.T) {
	t.Run("run with force", func(t *testing.T) {
		backend := newFakeBackend()
		s := newTestServer(t, backend)

		rec, env := do(t, s, http.MethodPost, "/api/v1/downloads/alice/run?force=true", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, env.Success)
		assert.True(t, backend.lastForce)
		assert.JSONEq(t, `{"folders_processed":1,"files_found":0,"files_downloaded":2,"files_deleted":0,"files_transcribed":0,"errors":0}`, string(env.Stats))
	})

	t.Run("configuration error", func(t *testing.T) {
		backend := newFakeBackend()
		backend.runErr = jassist.Configf("no drive account configured for user bob")
		s := newTestServer(t, backend)

		rec, env := do(t, s, http.MethodPost, "/api/v1/downloads/bob/run", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.False(t, env.Success)
		assert.Contains(t, env.Error, "no drive account")
	})

	t.Run("transport error", func(t *testing.T) {
		backend := newFakeBackend()
		backend.runErr = fmt.Errorf("listing folder: %w", jassist.NewTransportError(jassist.KindConnection, 0, "", errors.New("dial tcp")))
		s := newTestServer(t, backend)

		rec, _ := do(t, s, http.MethodPost, "/api/v1/downloads/alice/run", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("single file", func(t *testing.T) {
		s := newTestServer(t, newFakeBackend())

		rec, env := do(t, s, http.MethodPost, "/api/v1/downloads/alice/files/f-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, env.Success)

		rec, env = do(t, s, http.MethodPost, "/api/v1/downloads/alice/files/missing", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, env.Success)
		assert.Equal(t, "file not found", env.Error)
	})

	t.Run("record status", func(t *testing.T) {
		s := newTestServer(t, newFakeBackend())

		rec, env := do(t, s, http.MethodGet, "/api/v1/downloads/records/rec-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, string(env.Data), `"file_name":"memo.mp3"`)

		rec, _ = do(t, s, http.MethodGet, "/api/v1/downloads/records/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTranscriptions(t *testing.T) {
	t.Run("submit", func(t *testing.T) {
		backend := newFakeBackend()
		s := newTestServer(t, backend)

		rec, env := do(t, s, http.MethodPost, "/api/v1/transcriptions", map[string]string{"user_id": "alice", "path": "/tmp/memo.mp3"})
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.JSONEq(t, `{"job_id":9,"status":"pending"}`, string(env.Data))
		assert.Equal(t, []string{"alice:/tmp/memo.mp3"}, backend.submitted)
	})

	t.Run("submit without path", func(t *testing.T) {
		backend := newFakeBackend()
		s := newTestServer(t, backend)

		rec, env := do(t, s, http.MethodPost, "/api/v1/transcriptions", map[string]string{"user_id": "alice"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, env.Success)
		assert.Empty(t, backend.submitted)
	})

	t.Run("submit missing file", func(t *testing.T) {
		backend := newFakeBackend()
		backend.submitErr = jassist.Invalidf("File not found: /nope.mp3")
		s := newTestServer(t, backend)

		rec, env := do(t, s, http.MethodPost, "/api/v1/transcriptions", map[string]string{"user_id": "alice", "path": "/nope.mp3"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "File not found: /nope.mp3", env.Error)
	})

	t.Run("get job", func(t *testing.T) {
		s := newTestServer(t, newFakeBackend())

		rec, env := do(t, s, http.MethodGet, "/api/v1/transcriptions/1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var job jobResponse
		require.NoError(t, json.Unmarshal(env.Data, &job))
		assert.Equal(t, int64(1), job.ID)
		assert.Equal(t, jassist.JobCompleted, job.Status)
		assert.Equal(t, "note", job.ContentLabel)
		assert.Nil(t, job.CompletedAt)
	})

	t.Run("get unknown and malformed ids", func(t *testing.T) {
		s := newTestServer(t, newFakeBackend())

		rec, _ := do(t, s, http.MethodGet, "/api/v1/transcriptions/42", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec, _ = do(t, s, http.MethodGet, "/api/v1/transcriptions/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("retry", func(t *testing.T) {
		s := newTestServer(t, newFakeBackend())

		rec, env := do(t, s, http.MethodPost, "/api/v1/transcriptions/2/retry", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		var job jobResponse
		require.NoError(t, json.Unmarshal(env.Data, &job))
		assert.Equal(t, jassist.JobPending, job.Status)
		assert.Equal(t, int64(1), job.RetryCount)
	})

	t.Run("retry completed job", func(t *testing.T) {
		backend := newFakeBackend()
		backend.retryErr = jassist.ErrJobNotRetryable
		s := newTestServer(t, backend)

		rec, _ := do(t, s, http.MethodPost, "/api/v1/transcriptions/1/retry", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("result", func(t *testing.T) {
		s := newTestServer(t, newFakeBackend())

		rec, env := do(t, s, http.MethodGet, "/api/v1/transcriptions/1/result", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"job_id":1,"format":"txt","content":"hello"}`, string(env.Data))

		rec, _ = do(t, s, http.MethodGet, "/api/v1/transcriptions/2/result", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestClassifications(t *testing.T) {
	t.Run("classify job", func(t *testing.T) {
		backend := newFakeBackend()
		s := newTestServer(t, backend)

		rec, env := do(t, s, http.MethodPost, "/api/v1/classifications/jobs/1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, env.Success)
		assert.JSONEq(t, `{"job_id":1,"content_label":"note"}`, string(env.Data))

		rec, _ = do(t, s, http.MethodPost, "/api/v1/classifications/jobs/2", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = do(t, s, http.MethodPost, "/api/v1/classifications/jobs/77", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, []int64{1, 2, 77}, backend.classified)
	})

	t.Run("batch with filters", func(t *testing.T) {
		backend := newFakeBackend()
		s := newTestServer(t, backend)

		rec, env := do(t, s, http.MethodPost, "/api/v1/classifications/batches",
			map[string]any{"job_ids": []int64{1, 2}, "force": true, "dry_run": true, "batch_size": 5})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, jassist.BatchOptions{JobIDs: []int64{1, 2}, Force: true, DryRun: true, BatchSize: 5}, backend.lastBatch)
		assert.JSONEq(t, `{"total":2,"successful":2,"failed":0}`, string(env.Stats))
	})

	t.Run("batch without body", func(t *testing.T) {
		backend := newFakeBackend()
		s := newTestServer(t, backend)

		rec, _ := do(t, s, http.MethodPost, "/api/v1/classifications/batches", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, jassist.BatchOptions{}, backend.lastBatch)
	})

	t.Run("failed batch reports recovered counts", func(t *testing.T) {
		backend := newFakeBackend()
		backend.batchErr = errors.New("checkpointing batch: disk I/O error")
		s := newTestServer(t, backend)

		rec, env := do(t, s, http.MethodPost, "/api/v1/classifications/batches", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, env.Success)
		assert.Contains(t, env.Error, "disk I/O error")
		assert.JSONEq(t, `{"total":5,"successful":2,"failed":1}`, string(env.Stats))

		var res jassist.BatchResult
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Equal(t, "b-2", res.BatchID)
		assert.Equal(t, jassist.BatchFailed, res.Status)
	})

	t.Run("get batch", func(t *testing.T) {
		s := newTestServer(t, newFakeBackend())

		rec, env := do(t, s, http.MethodGet, "/api/v1/classifications/batches/b-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var batch batchResponse
		require.NoError(t, json.Unmarshal(env.Data, &batch))
		assert.Equal(t, int64(3), batch.SuccessfulRecords)

		rec, _ = do(t, s, http.MethodGet, "/api/v1/classifications/batches/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUsage(t *testing.T) {
	backend := newFakeBackend()
	s := newTestServer(t, backend)

	rec, env := do(t, s, http.MethodGet, "/api/v1/metrics/alice/usage?start=2024-01-01&end=2024-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, backend.lastRange.Start)
	require.NotNil(t, backend.lastRange.End)
	assert.Equal(t, "2024-01-01", backend.lastRange.Start.Format(metrics.DateLayout))
	assert.Equal(t, "2024-01-31", backend.lastRange.End.Format(metrics.DateLayout))
	assert.Contains(t, string(env.Data), `"total_jobs":4`)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/metrics/alice/usage?start=january", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	s := NewServer(config.ServerConfig{Mode: gin.TestMode, AllowedOrigins: []string{"http://localhost:3000"}}, newFakeBackend(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transcriptions/1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_WithApp(t *testing.T) {
	t.Setenv(app.EnvOpenAIKey, "")
	cfg := config.NewConfig(t.TempDir())
	cfg.Database.Type = "memory"
	cfg.Remote.Type = "memory"
	cfg.Secrets.Type = "test"
	cfg.Queue.Type = "memory"

	a, err := app.New(cfg, "Serve", app.Options{DryRun: true})
	require.NoError(t, err)
	defer a.Close()

	s := newTestServer(t, a)
	path := testutil.WriteFile(t, t.TempDir(), "memo.mp3", 10)

	rec, env := do(t, s, http.MethodPost, "/api/v1/transcriptions", map[string]string{"user_id": "alice", "path": path})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var submitted struct {
		JobID int64 `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &submitted))

	rec, env = do(t, s, http.MethodGet, fmt.Sprintf("/api/v1/transcriptions/%d", submitted.JobID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job jobResponse
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, "memo.mp3", job.FileName)
	assert.Equal(t, jassist.JobPending, job.Status)

	rec, _ = do(t, s, http.MethodGet, fmt.Sprintf("/api/v1/transcriptions/%d/result", submitted.JobID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
