package jassist_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"jassist-go/internal/database"
	"jassist-go/internal/database/sqlc"
	"jassist-go/internal/jassist"
	"jassist-go/internal/testutil"
)

// seedCompletedJobs creates n completed jobs with ids 1..n.
func seedCompletedJobs(t *testing.T, db *database.SQLiteDatabase, n int) []*sqlc.TranscriptionJob {
	t.Helper()
	jobs := make([]*sqlc.TranscriptionJob, 0, n)
	for i := 1; i <= n; i++ {
		job, err := db.CreateTranscriptionJob(jassist.NewJob{
			UserID:   "alice",
			FileID:   fmt.Sprintf("file-%d", i),
			FileName: fmt.Sprintf("memo%d.mp3", i),
			Model:    "whisper-1",
		})
		if err != nil {
			t.Fatalf("CreateTranscriptionJob() error = %v", err)
		}
		job, err = db.ClaimTranscriptionJob(job.ID)
		if err != nil || job == nil {
			t.Fatalf("ClaimTranscriptionJob() = %v, %v", job, err)
		}
		job.Status = jassist.JobCompleted
		job.Progress = 100
		job.TranscriptContent = sql.NullString{String: fmt.Sprintf("meeting notes number %d", i), Valid: true}
		if err := db.UpdateTranscriptionJob(job); err != nil {
			t.Fatalf("UpdateTranscriptionJob() error = %v", err)
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func newProcessor(db jassist.Database, c jassist.Classifier) *jassist.ClassificationProcessor {
	return jassist.NewClassificationProcessor(db, c, testutil.FixedClock(), testutil.NewStubIDGenerator(), jassist.NewNopLogger())
}

func TestClassificationProcessor_ProcessBatch(t *testing.T) {
	t.Run("one failure does not stop the batch", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		seedCompletedJobs(t, db, 25)
		classifier := testutil.NewStubClassifier()
		classifier.Answer = func(_ string, opts jassist.ClassifyOptions) (string, error) {
			if opts.JobID == 13 {
				return "", &jassist.ClassificationError{Attempts: 4, Err: errors.New("run failed")}
			}
			return `{"category": "meeting"}`, nil
		}

		res, err := newProcessor(db, classifier).ProcessBatch(context.Background(), jassist.BatchOptions{BatchSize: 20})
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}
		if res.Status != jassist.BatchCompleted || res.Total != 25 || res.Successful != 24 || res.Failed != 1 {
			t.Errorf("result = %+v", res)
		}

		batch, err := db.FindClassificationBatch(res.BatchID)
		if err != nil || batch == nil {
			t.Fatalf("FindClassificationBatch() = %v, %v", batch, err)
		}
		if batch.ProcessedRecords != 25 || batch.SuccessfulRecords != 24 || batch.FailedRecords != 1 {
			t.Errorf("batch counters = %d/%d/%d", batch.ProcessedRecords, batch.SuccessfulRecords, batch.FailedRecords)
		}
		if batch.Status != jassist.BatchCompleted || !batch.EndTime.Valid {
			t.Errorf("batch = %+v", batch)
		}

		for _, id := range []int64{1, 12, 14, 25} {
			job, _ := db.FindTranscriptionJob(id)
			if job.ContentLabel != jassist.LabelMeeting {
				t.Errorf("job %d label = %q, want meeting", id, job.ContentLabel)
			}
		}
		failed, _ := db.FindTranscriptionJob(13)
		if failed.ContentLabel != jassist.LabelUnlabeled {
			t.Errorf("job 13 label = %q, want unlabeled", failed.ContentLabel)
		}

		for _, call := range classifier.Calls() {
			if call.BatchID != res.BatchID {
				t.Fatalf("call batch = %q, want %q", call.BatchID, res.BatchID)
			}
		}
	})

	t.Run("skips labeled jobs unless forced", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		jobs := seedCompletedJobs(t, db, 3)
		if err := db.UpdateTranscriptionJobLabel(jobs[0], jassist.LabelDiary); err != nil {
			t.Fatalf("UpdateTranscriptionJobLabel() error = %v", err)
		}

		p := newProcessor(db, testutil.NewStubClassifier())
		res, err := p.ProcessBatch(context.Background(), jassist.BatchOptions{})
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}
		if res.Total != 2 {
			t.Errorf("Total = %d, want 2", res.Total)
		}
		job, _ := db.FindTranscriptionJob(jobs[0].ID)
		if job.ContentLabel != jassist.LabelDiary {
			t.Errorf("labeled job changed to %q", job.ContentLabel)
		}

		forced, err := p.ProcessBatch(context.Background(), jassist.BatchOptions{Force: true})
		if err != nil {
			t.Fatalf("ProcessBatch(force) error = %v", err)
		}
		if forced.Total != 3 {
			t.Errorf("forced Total = %d, want 3", forced.Total)
		}
	})

	t.Run("selects by id and limit", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		seedCompletedJobs(t, db, 5)
		p := newProcessor(db, testutil.NewStubClassifier())

		res, err := p.ProcessBatch(context.Background(), jassist.BatchOptions{JobIDs: []int64{2, 4, 99}})
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}
		if res.Total != 2 {
			t.Errorf("Total = %d, want 2", res.Total)
		}

		res, err = p.ProcessBatch(context.Background(), jassist.BatchOptions{Limit: 1})
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}
		if res.Total != 1 {
			t.Errorf("Total = %d, want 1", res.Total)
		}
	})

	t.Run("dry run writes no labels", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		seedCompletedJobs(t, db, 2)

		res, err := newProcessor(db, testutil.NewStubClassifier()).ProcessBatch(context.Background(), jassist.BatchOptions{DryRun: true})
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}
		if !res.DryRun || res.Successful != 2 {
			t.Errorf("result = %+v", res)
		}
		job, _ := db.FindTranscriptionJob(1)
		if job.ContentLabel != jassist.LabelUnlabeled {
			t.Errorf("dry run labeled job: %q", job.ContentLabel)
		}
	})

	t.Run("cancelled context fails the batch", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		seedCompletedJobs(t, db, 2)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := newProcessor(db, testutil.NewStubClassifier()).ProcessBatch(ctx, jassist.BatchOptions{})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("ProcessBatch() error = %v, want context.Canceled", err)
		}
		if res == nil || res.Status != jassist.BatchFailed || res.Total != 2 || res.Successful != 0 {
			t.Errorf("result = %+v", res)
		}
		batch, _ := db.FindClassificationBatch("id-1")
		if batch == nil || batch.Status != jassist.BatchFailed || !batch.ErrorMessage.Valid {
			t.Errorf("batch = %+v", batch)
		}
	})
}

// checkpointFailingDB fails the nth UpdateClassificationBatch call.
type checkpointFailingDB struct {
	jassist.Database
	failOn int
	calls  int
}

func (d *checkpointFailingDB) UpdateClassificationBatch(batch *sqlc.ClassificationBatch) error {
	d.calls++
	if d.calls == d.failOn {
		return errors.New("disk I/O error")
	}
	return d.Database.UpdateClassificationBatch(batch)
}

func TestClassificationProcessor_ProcessBatch_RecoversCountsFromMetrics(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	jobs := seedCompletedJobs(t, db, 5)

	// Job 2 has no text, so it is counted in memory but never reaches the classifier.
	jobs[1].TranscriptContent = sql.NullString{}
	if err := db.UpdateTranscriptionJob(jobs[1]); err != nil {
		t.Fatalf("UpdateTranscriptionJob() error = %v", err)
	}

	classifier := testutil.NewStubClassifier()
	classifier.Answer = func(_ string, opts jassist.ClassifyOptions) (string, error) {
		ok := opts.JobID != 3
		err := db.CreateClassificationMetric(&sqlc.ClassificationMetric{
			BatchID:     sql.NullString{String: opts.BatchID, Valid: true},
			JobID:       sql.NullInt64{Int64: opts.JobID, Valid: true},
			TotalTokens: 10,
			Success:     ok,
			ModelUsed:   "gpt-4o-mini",
		})
		if err != nil {
			t.Errorf("CreateClassificationMetric() error = %v", err)
		}
		if !ok {
			return "", &jassist.ClassificationError{Attempts: 1, Err: errors.New("run failed")}
		}
		return "note", nil
	}

	// Call 1 marks the batch processing, call 2 checkpoints page one, call 3 page two.
	failing := &checkpointFailingDB{Database: db, failOn: 3}
	res, err := newProcessor(failing, classifier).ProcessBatch(context.Background(), jassist.BatchOptions{BatchSize: 2})
	if err == nil {
		t.Fatal("ProcessBatch() succeeded, want checkpoint error")
	}
	if res == nil {
		t.Fatal("ProcessBatch() returned no result for a failed batch")
	}
	if res.BatchID != "id-1" || res.Status != jassist.BatchFailed {
		t.Errorf("result = %+v", res)
	}
	if res.Total != 5 || res.Successful != 2 || res.Failed != 1 {
		t.Errorf("result counts = %+v, want total 5, successful 2, failed 1", res)
	}

	batch, err := db.FindClassificationBatch("id-1")
	if err != nil {
		t.Fatalf("FindClassificationBatch() error = %v", err)
	}
	if batch.Status != jassist.BatchFailed || !batch.ErrorMessage.Valid {
		t.Errorf("batch = %+v", batch)
	}
	if batch.ProcessedRecords != 3 || batch.SuccessfulRecords != 2 || batch.FailedRecords != 1 {
		t.Errorf("batch counts = %d/%d/%d, want 3/2/1 from metrics",
			batch.ProcessedRecords, batch.SuccessfulRecords, batch.FailedRecords)
	}
	if batch.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30", batch.TotalTokens)
	}
	if len(classifier.Calls()) != 3 {
		t.Errorf("classifier calls = %d, want 3", len(classifier.Calls()))
	}
}

func TestClassificationProcessor_ClassifyJob(t *testing.T) {
	t.Run("labels a completed job", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		seedCompletedJobs(t, db, 1)
		c := testutil.NewStubClassifier()
		c.Answer = func(string, jassist.ClassifyOptions) (string, error) { return "todo", nil }

		job, ok, err := newProcessor(db, c).ClassifyJob(context.Background(), 1, false)
		if err != nil || !ok {
			t.Fatalf("ClassifyJob() = %v, %v", ok, err)
		}
		if job.ContentLabel != jassist.LabelTodo {
			t.Errorf("ContentLabel = %q, want todo", job.ContentLabel)
		}
	})

	t.Run("rejects jobs that are not completed", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		pending, err := db.CreateTranscriptionJob(jassist.NewJob{UserID: "alice", FileID: "f", FileName: "memo.mp3", Model: "whisper-1"})
		if err != nil {
			t.Fatalf("CreateTranscriptionJob() error = %v", err)
		}

		_, _, err = newProcessor(db, testutil.NewStubClassifier()).ClassifyJob(context.Background(), pending.ID, false)
		var verr *jassist.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("ClassifyJob() error = %v, want validation error", err)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		job, _, err := newProcessor(db, testutil.NewStubClassifier()).ClassifyJob(context.Background(), 7, false)
		if err != nil || job != nil {
			t.Errorf("ClassifyJob() = %v, %v, want nil, nil", job, err)
		}
	})

	t.Run("stale version is not overwritten", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		jobs := seedCompletedJobs(t, db, 1)
		stale := *jobs[0]
		if err := db.UpdateTranscriptionJobLabel(jobs[0], jassist.LabelDiary); err != nil {
			t.Fatalf("UpdateTranscriptionJobLabel() error = %v", err)
		}

		p := newProcessor(db, testutil.NewStubClassifier())
		if p.ProcessOne(context.Background(), &stale, nil, false) {
			t.Error("ProcessOne() succeeded with a stale version")
		}
		job, _ := db.FindTranscriptionJob(1)
		if job.ContentLabel != jassist.LabelDiary {
			t.Errorf("ContentLabel = %q, want diary", job.ContentLabel)
		}
	})
}
