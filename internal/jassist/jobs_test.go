package jassist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"jassist-go/internal/database"
	"jassist-go/internal/jassist"
	"jassist-go/internal/queue"
	"jassist-go/internal/testutil"
)

func newJob(userID, path string) jassist.NewJob {
	return jassist.NewJob{UserID: userID, FileID: path, FileName: "memo.mp3", Model: "whisper-1", ResultFormat: "txt"}
}

func newRunnerFixture(t *testing.T, q jassist.TaskQueue) (*jassist.JobRunner, *database.SQLiteDatabase, *transcriberFixture) {
	t.Helper()
	clock := testutil.FixedClock()
	db := testutil.NewTestDatabaseWithClock(t, clock)
	tf := newTranscriberFixture(t, defaultTranscriptionSettings())
	return jassist.NewJobRunner(db, tf.transcriber, q, clock, jassist.NewNopLogger(), false), db, tf
}

func TestJobRunner_Transcribe(t *testing.T) {
	t.Run("completes the job", func(t *testing.T) {
		runner, db, tf := newRunnerFixture(t, nil)
		path := testutil.WriteFile(t, tf.srcDir, "memo.mp3", 10)

		job, err := runner.Transcribe(context.Background(), newJob("alice", path), path)
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}
		if job.Status != jassist.JobCompleted || !job.CompletedAt.Valid || !job.ResultPath.Valid {
			t.Errorf("job = %+v", job)
		}
		if job.WordCount != 3 {
			t.Errorf("WordCount = %d, want 3", job.WordCount)
		}

		stored, err := db.FindTranscriptionJob(job.ID)
		if err != nil {
			t.Fatalf("FindTranscriptionJob() error = %v", err)
		}
		if stored.Version != job.Version || stored.TranscriptContent.String != "transcript of memo.mp3" {
			t.Errorf("stored = %+v", stored)
		}
	})

	t.Run("records failures on the job", func(t *testing.T) {
		runner, db, tf := newRunnerFixture(t, nil)
		tf.speech.Respond = func(jassist.TranscribeRequest) (map[string]any, error) {
			return nil, jassist.NewTransportError(jassist.KindAuth, 401, "", nil)
		}
		path := testutil.WriteFile(t, tf.srcDir, "memo.mp3", 10)

		job, err := runner.Transcribe(context.Background(), newJob("alice", path), path)
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}
		stored, _ := db.FindTranscriptionJob(job.ID)
		if stored.Status != jassist.JobFailed || !stored.ErrorMessage.Valid {
			t.Errorf("stored = %+v", stored)
		}
	})
}

func TestJobRunner_Run_SkipsNonPendingJobs(t *testing.T) {
	runner, db, tf := newRunnerFixture(t, nil)
	path := testutil.WriteFile(t, tf.srcDir, "memo.mp3", 10)

	job, err := runner.Transcribe(context.Background(), newJob("alice", path), path)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	again, err := runner.Run(context.Background(), job.ID, path)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if again != nil {
		t.Errorf("Run() of completed job = %+v, want nil", again)
	}
	if n := len(tf.speech.Requests()); n != 1 {
		t.Errorf("speech requests = %d, want 1", n)
	}
	stored, _ := db.FindTranscriptionJob(job.ID)
	if stored.Version != job.Version {
		t.Errorf("completed job was written again: version %d -> %d", job.Version, stored.Version)
	}
}

func TestJobRunner_Submit(t *testing.T) {
	t.Run("needs a queue", func(t *testing.T) {
		runner, _, _ := newRunnerFixture(t, nil)
		_, err := runner.Submit(context.Background(), newJob("alice", "x.mp3"), "x.mp3")
		if !jassist.IsConfigurationError(err) {
			t.Errorf("Submit() error = %v, want configuration error", err)
		}
	})

	t.Run("worker completes the queued job", func(t *testing.T) {
		q := queue.NewMemoryQueue(1, queue.DefaultBuffer, jassist.NewNopLogger())
		runner, db, tf := newRunnerFixture(t, q)
		path := testutil.WriteFile(t, tf.srcDir, "memo.mp3", 10)

		job, err := runner.Submit(context.Background(), newJob("alice", path), path)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if job.Status != jassist.JobPending {
			t.Errorf("Status = %q, want pending", job.Status)
		}
		if q.Len() != 1 {
			t.Fatalf("queue length = %d, want 1", q.Len())
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go q.Run(ctx, runner.HandleTask)

		deadline := time.Now().Add(5 * time.Second)
		for {
			stored, err := db.FindTranscriptionJob(job.ID)
			if err != nil {
				t.Fatalf("FindTranscriptionJob() error = %v", err)
			}
			if stored.Status == jassist.JobCompleted {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("job still %s after 5s", stored.Status)
			}
			time.Sleep(10 * time.Millisecond)
		}
	})
}

func TestJobRunner_Retry(t *testing.T) {
	t.Run("requeues a failed job", func(t *testing.T) {
		q := queue.NewMemoryQueue(1, queue.DefaultBuffer, jassist.NewNopLogger())
		runner, _, tf := newRunnerFixture(t, q)
		fail := true
		tf.speech.Respond = func(req jassist.TranscribeRequest) (map[string]any, error) {
			if fail {
				return nil, jassist.NewTransportError(jassist.KindConnection, 0, "", nil)
			}
			return map[string]any{"text": "ok"}, nil
		}
		path := testutil.WriteFile(t, tf.srcDir, "memo.mp3", 10)

		job, err := runner.Transcribe(context.Background(), newJob("alice", path), path)
		if err != nil || job.Status != jassist.JobFailed {
			t.Fatalf("Transcribe() = %+v, %v", job, err)
		}

		retried, err := runner.Retry(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		if retried.Status != jassist.JobPending || retried.RetryCount != 1 {
			t.Errorf("retried = %+v", retried)
		}
		if q.Len() != 1 {
			t.Errorf("queue length = %d, want 1", q.Len())
		}

		fail = false
		done, err := runner.Run(context.Background(), job.ID, path)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if done.Status != jassist.JobCompleted {
			t.Errorf("Status = %q, want completed", done.Status)
		}
	})

	t.Run("refuses jobs in other states", func(t *testing.T) {
		q := queue.NewMemoryQueue(1, queue.DefaultBuffer, jassist.NewNopLogger())
		runner, _, tf := newRunnerFixture(t, q)
		path := testutil.WriteFile(t, tf.srcDir, "memo.mp3", 10)

		job, err := runner.Transcribe(context.Background(), newJob("alice", path), path)
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}
		existing, err := runner.Retry(context.Background(), job.ID)
		if !errors.Is(err, jassist.ErrJobNotRetryable) {
			t.Errorf("Retry() error = %v, want ErrJobNotRetryable", err)
		}
		if existing == nil || existing.Status != jassist.JobCompleted {
			t.Errorf("existing = %+v", existing)
		}
		if q.Len() != 0 {
			t.Errorf("queue length = %d, want 0", q.Len())
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		q := queue.NewMemoryQueue(1, queue.DefaultBuffer, jassist.NewNopLogger())
		runner, _, _ := newRunnerFixture(t, q)
		job, err := runner.Retry(context.Background(), 42)
		if err != nil || job != nil {
			t.Errorf("Retry() = %v, %v, want nil, nil", job, err)
		}
	})
}

func TestJobRunner_DryRun(t *testing.T) {
	newDryRunner := func(t *testing.T, q jassist.TaskQueue) (*jassist.JobRunner, *database.SQLiteDatabase, *transcriberFixture) {
		t.Helper()
		clock := testutil.FixedClock()
		db := testutil.NewTestDatabaseWithClock(t, clock)
		settings := defaultTranscriptionSettings()
		settings.DryRun = true
		tf := newTranscriberFixture(t, settings)
		return jassist.NewJobRunner(db, tf.transcriber, q, clock, jassist.NewNopLogger(), true), db, tf
	}

	t.Run("transcribe saves nothing", func(t *testing.T) {
		runner, db, tf := newDryRunner(t, nil)
		path := testutil.WriteFile(t, tf.srcDir, "memo.mp3", 10)

		job, err := runner.Transcribe(context.Background(), newJob("alice", path), path)
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}
		if job.ID != 0 || job.Status != jassist.JobCompleted || job.TranscriptContent.String != jassist.DryRunText {
			t.Errorf("job = %+v", job)
		}
		if job.ContentLabel != jassist.LabelUnlabeled {
			t.Errorf("ContentLabel = %q", job.ContentLabel)
		}

		stored, err := db.FindTranscriptionJob(1)
		if err != nil {
			t.Fatalf("FindTranscriptionJob() error = %v", err)
		}
		if stored != nil {
			t.Errorf("dry run stored job %+v", stored)
		}
		pending, err := db.FindClassifiableJobs(jassist.JobSelection{Force: true})
		if err != nil {
			t.Fatalf("FindClassifiableJobs() error = %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("classification would pick up %d dry-run jobs", len(pending))
		}
	})

	t.Run("submit and retry are refused", func(t *testing.T) {
		q := queue.NewMemoryQueue(1, queue.DefaultBuffer, jassist.NewNopLogger())
		runner, db, _ := newDryRunner(t, q)

		var verr *jassist.ValidationError
		if _, err := runner.Submit(context.Background(), newJob("alice", "x.mp3"), "x.mp3"); !errors.As(err, &verr) {
			t.Errorf("Submit() error = %v, want validation error", err)
		}
		if _, err := runner.Retry(context.Background(), 1); !errors.As(err, &verr) {
			t.Errorf("Retry() error = %v, want validation error", err)
		}
		if q.Len() != 0 {
			t.Errorf("queue length = %d, want 0", q.Len())
		}
		if stored, _ := db.FindTranscriptionJob(1); stored != nil {
			t.Errorf("dry run stored job %+v", stored)
		}
	})
}
