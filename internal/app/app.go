package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"jassist-go/internal/assistant"
	"jassist-go/internal/audio"
	"jassist-go/internal/config"
	"jassist-go/internal/database"
	"jassist-go/internal/database/sqlc"
	"jassist-go/internal/jassist"
	"jassist-go/internal/metrics"
	"jassist-go/internal/queue"
	"jassist-go/internal/remote"
	"jassist-go/internal/schedule"
	"jassist-go/internal/secrets"
	"jassist-go/internal/speech"
	"jassist-go/internal/storage"
	"jassist-go/internal/transcript"
)

// App is the application layer between the CLI or HTTP API and the jassist services.
// It constructs shared dependencies from config, builds the speech, classification and
// per-user download services on first use, and manages the DB and queue lifecycle on Close.
type App struct {
	cfg      *config.Config
	opts     Options
	db       *database.SQLiteDatabase
	secrets  secrets.Store
	queue    queue.Queue
	metrics  *metrics.Collector
	schedule *schedule.Evaluator
	clock    jassist.Clock
	idgen    jassist.IDGenerator
	logger   jassist.Logger
	op       *Operation
	logFile  *os.File

	mu          sync.Mutex
	transcriber *jassist.Transcriber
	jobs        *jassist.JobRunner
	processor   *jassist.ClassificationProcessor
	downloads   map[string]*jassist.DownloadService
}

// Options adjust how an App runs.
type Options struct {
	// DryRun is passed to every service: nothing is downloaded, transcribed or labeled.
	DryRun bool
	// Passphrase unlocks the secrets store when a secret is first read.
	Passphrase secrets.PassphraseFunc
}

// AccountRun is the outcome of one account in RunScheduledDownloads.
type AccountRun struct {
	UserID  string                     `json:"user_id"`
	Skipped bool                       `json:"skipped,omitempty"`
	Result  *jassist.DownloadRunResult `json:"result,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// New creates an App from the given config.
// operation identifies the command being run (e.g. "RunDownloads", "ClassifyBatch").
// The caller must call Close when done.
func New(cfg *config.Config, operation string, opts Options) (*App, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	store, err := secrets.NewStoreFromConfig(cfg.Secrets, opts.Passphrase)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating secrets store: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, cfg.Debug)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	q, err := queue.NewQueueFromConfig(cfg.Queue, log)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating queue: %w", err)
	}

	clock := jassist.RealClock{}
	return &App{
		cfg:       cfg,
		opts:      opts,
		db:        db,
		secrets:   store,
		queue:     q,
		metrics:   metrics.NewCollector(cfg.Transcription.MetricsDir, clock, log),
		schedule:  schedule.NewEvaluator(clock, log),
		clock:     clock,
		idgen:     jassist.UUIDGenerator{},
		logger:    log,
		op:        NewOperation(operation, ""),
		logFile:   logFile,
		downloads: make(map[string]*jassist.DownloadService),
	}, nil
}

// Config returns the config the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the App's logger.
func (a *App) Logger() jassist.Logger { return a.logger }

// Database returns the job database.
func (a *App) Database() jassist.Database { return a.db }

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for DB-mutating commands. A served App persists only the
// first call's parameters.
func (a *App) persistOperation(parameters string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(a.op.Operation, parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.mu.Lock()
	a.op.ID = dbOp.ID
	a.op.Parameters = parameters
	a.op.mu.Unlock()
	return nil
}

// apiKey returns OPENAI_API_KEY or the sealed openai key.
func (a *App) apiKey() (string, error) {
	if key := os.Getenv(EnvOpenAIKey); key != "" {
		return key, nil
	}
	key, err := a.secrets.Get(jassist.SecretOpenAIKey)
	if err != nil {
		return "", fmt.Errorf("reading openai key: %w", err)
	}
	return key, nil
}

// Transcriber returns the process-wide Transcriber, building it on first use.
func (a *App) Transcriber() (*jassist.Transcriber, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcriberLocked()
}

func (a *App) transcriberLocked() (*jassist.Transcriber, error) {
	if a.transcriber != nil {
		return a.transcriber, nil
	}

	tc := a.cfg.Transcription
	if !tc.Active && !a.opts.DryRun {
		return nil, jassist.Configf("transcription is disabled")
	}

	pre, err := audio.NewPreprocessorFromConfig(tc, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating audio preprocessor: %w", err)
	}

	// A dry run never reaches the API, so it needs no key.
	var sp jassist.SpeechClient
	if !a.opts.DryRun {
		key, err := a.apiKey()
		if err != nil {
			return nil, err
		}
		client, err := speech.NewClientFromConfig(tc, key, a.logger)
		if err != nil {
			return nil, err
		}
		sp = client
	}

	formatter := transcript.NewFormatter(transcript.NewWriter(a.clock, tc.TimestampFormat, a.logger), tc.ResultsDir)
	t, err := jassist.NewTranscriber(jassist.TranscriptionSettings{
		Model:            tc.Model,
		Language:         tc.Language,
		Prompt:           tc.Prompt,
		ResponseFormat:   tc.ResponseFormat,
		OutputFormat:     tc.OutputFormat,
		MaxAudioDuration: tc.MaxAudioDurationSeconds,
		WarnOnLargeFiles: tc.WarnOnLargeFiles,
		SplitOversized:   tc.SplitOversized,
		DryRun:           a.opts.DryRun,
	}, pre, sp, formatter, a.metrics, a.logger)
	if err != nil {
		return nil, err
	}
	a.transcriber = t
	return t, nil
}

// JobRunner returns the JobRunner shared by downloads, submissions and the worker.
func (a *App) JobRunner() (*jassist.JobRunner, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.jobRunnerLocked()
}

func (a *App) jobRunnerLocked() (*jassist.JobRunner, error) {
	if a.jobs != nil {
		return a.jobs, nil
	}
	t, err := a.transcriberLocked()
	if err != nil {
		return nil, err
	}
	a.jobs = jassist.NewJobRunner(a.db, t, a.queue, a.clock, a.logger, a.opts.DryRun)
	return a.jobs, nil
}

// Downloads returns the DownloadService for userID, building it on first use.
func (a *App) Downloads(ctx context.Context, userID string) (*jassist.DownloadService, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if svc, ok := a.downloads[userID]; ok {
		return svc, nil
	}

	account := a.cfg.Account(userID)
	if account == nil {
		return nil, jassist.Configf("no drive account configured for user %s", userID)
	}

	rc, err := remote.NewRemoteFromConfig(ctx, a.cfg.Remote, userID, a.secrets, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating remote: %w", err)
	}
	st, err := storage.NewStorageFromConfig(a.cfg.Drive, userID, a.clock)
	if err != nil {
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	auto := a.cfg.Drive.AutoTranscribe && a.cfg.Transcription.Active
	var jobs *jassist.JobRunner
	if auto {
		jobs, err = a.jobRunnerLocked()
		if err != nil {
			a.logger.Warn("auto-transcription unavailable, downloading only", "user", userID, "error", err)
			auto = false
		}
	}

	tc := a.cfg.Transcription
	svc, err := jassist.NewDownloadService(jassist.DownloadSettings{
		UserID:              userID,
		Active:              account.Active,
		TargetFolders:       account.TargetFolders,
		Schedule:            account.Schedule,
		Extensions:          a.cfg.Drive.Extensions,
		Exclude:             a.cfg.Drive.Exclude,
		DeleteAfterDownload: a.cfg.Drive.DeleteAfterDownload,
		AutoTranscribe:      auto,
		DryRun:              a.opts.DryRun,
		Language:            tc.Language,
		Model:               tc.Model,
		ResultFormat:        tc.OutputFormat,
	}, rc, st, a.db, a.schedule, jobs, a.clock, a.idgen, a.logger)
	if err != nil {
		return nil, err
	}
	a.downloads[userID] = svc
	return svc, nil
}

// Processor returns the ClassificationProcessor, building the assistant adapter on first use.
func (a *App) Processor() (*jassist.ClassificationProcessor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.processor != nil {
		return a.processor, nil
	}

	cc := a.cfg.Classification
	prompts, err := config.ReadPrompts(cc.PromptsFile)
	if err != nil {
		return nil, err
	}

	key, err := a.apiKey()
	if err != nil {
		if !a.cfg.Debug {
			return nil, err
		}
		a.logger.Warn("no openai key, classifier answers with mock responses", "error", err)
		key = ""
	}

	sessions, err := assistant.NewSessionStoreFromConfig(a.cfg.Session, cc.SessionName, a.db)
	if err != nil {
		return nil, err
	}
	adapter, err := assistant.NewAdapterFromConfig(cc, key, a.cfg.Debug, prompts, sessions, a.db, a.clock, a.logger)
	if err != nil {
		return nil, err
	}
	a.processor = jassist.NewClassificationProcessor(a.db, adapter, a.clock, a.idgen, a.logger)
	return a.processor, nil
}

// RunDownloads runs the download pipeline for one user.
func (a *App) RunDownloads(ctx context.Context, userID string, force bool) (*jassist.DownloadRunResult, error) {
	if err := a.persistOperation(fmt.Sprintf("user=%s force=%t", userID, force)); err != nil {
		return nil, err
	}
	svc, err := a.Downloads(ctx, userID)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	res, err := svc.RunDownloads(ctx, force)
	if err == nil && !res.Success {
		a.op.MarkFailed()
	}
	return res, a.op.Fail(err)
}

// RunScheduledDownloads runs every active account whose schedule is due.
// Accounts without a schedule only run when forced. One account failing does not stop the rest.
func (a *App) RunScheduledDownloads(ctx context.Context, force bool) ([]AccountRun, error) {
	if err := a.persistOperation(fmt.Sprintf("force=%t", force)); err != nil {
		return nil, err
	}

	var runs []AccountRun
	for _, account := range a.cfg.Drive.Accounts {
		if !account.Active {
			continue
		}
		if err := ctx.Err(); err != nil {
			return runs, a.op.Fail(err)
		}
		run := AccountRun{UserID: account.UserID}
		if strings.TrimSpace(account.Schedule) == "" && !force {
			a.logger.Info("skipping account without schedule", "user", account.UserID)
			run.Skipped = true
			runs = append(runs, run)
			continue
		}

		svc, err := a.Downloads(ctx, account.UserID)
		if err == nil {
			run.Result, err = svc.RunDownloads(ctx, force)
		}
		if err != nil {
			a.logger.Error("scheduled download failed", "user", account.UserID, "error", err)
			run.Error = err.Error()
			a.op.MarkFailed()
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// DownloadFile downloads one file by id for userID.
func (a *App) DownloadFile(ctx context.Context, userID, fileID string) (*jassist.FileDownloadResult, error) {
	if err := a.persistOperation(fmt.Sprintf("user=%s file=%s", userID, fileID)); err != nil {
		return nil, err
	}
	svc, err := a.Downloads(ctx, userID)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	res := svc.DownloadSpecificFile(ctx, fileID)
	if !res.Success {
		a.op.MarkFailed()
	}
	return res, nil
}

// DownloadStatus reports a download record.
func (a *App) DownloadStatus(recordID string) (*jassist.DownloadStatus, error) {
	return jassist.GetDownloadStatus(a.db, recordID)
}

func (a *App) newJob(userID, path string) jassist.NewJob {
	tc := a.cfg.Transcription
	return jassist.NewJob{
		UserID:       userID,
		FileID:       path,
		FileName:     filepath.Base(path),
		Language:     tc.Language,
		Model:        tc.Model,
		ResultFormat: tc.OutputFormat,
	}
}

// TranscribeFile creates a job for the local file at path and runs it now.
func (a *App) TranscribeFile(ctx context.Context, userID, path string) (*sqlc.TranscriptionJob, error) {
	if err := a.persistOperation(fmt.Sprintf("user=%s path=%s", userID, path)); err != nil {
		return nil, err
	}
	jobs, err := a.JobRunner()
	if err != nil {
		return nil, a.op.Fail(err)
	}
	job, err := jobs.Transcribe(ctx, a.newJob(userID, path), path)
	if err == nil && job.Status == jassist.JobFailed {
		a.op.MarkFailed()
	}
	return job, a.op.Fail(err)
}

// SubmitTranscription creates a pending job for path and hands it to the queue.
func (a *App) SubmitTranscription(ctx context.Context, userID, path string) (*sqlc.TranscriptionJob, error) {
	if err := a.persistOperation(fmt.Sprintf("user=%s path=%s", userID, path)); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, a.op.Fail(jassist.Invalidf("File not found: %s", path))
	}
	jobs, err := a.JobRunner()
	if err != nil {
		return nil, a.op.Fail(err)
	}
	job, err := jobs.Submit(ctx, a.newJob(userID, path), path)
	return job, a.op.Fail(err)
}

// TranscriptionJob returns job id, or nil.
func (a *App) TranscriptionJob(id int64) (*sqlc.TranscriptionJob, error) {
	return a.db.FindTranscriptionJob(id)
}

// RetryTranscription requeues a failed or canceled job.
func (a *App) RetryTranscription(ctx context.Context, id int64) (*sqlc.TranscriptionJob, error) {
	if err := a.persistOperation(fmt.Sprintf("job=%d", id)); err != nil {
		return nil, err
	}
	jobs, err := a.JobRunner()
	if err != nil {
		return nil, a.op.Fail(err)
	}
	job, err := jobs.Retry(ctx, id)
	return job, a.op.Fail(err)
}

// TranscriptResult is the saved output of a completed job.
type TranscriptResult struct {
	JobID   int64  `json:"job_id"`
	Format  string `json:"format"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content"`
}

// TranscriptionResult reads the output of job id. It prefers the saved file and falls back
// to the content stored on the job. A nil result means the job does not exist.
func (a *App) TranscriptionResult(id int64) (*TranscriptResult, error) {
	job, err := a.db.FindTranscriptionJob(id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	if job.Status != jassist.JobCompleted {
		return nil, jassist.Invalidf("job %d is %s, no result yet", id, job.Status)
	}

	res := &TranscriptResult{JobID: job.ID, Format: job.ResultFormat, Content: job.TranscriptContent.String}
	if job.ResultPath.Valid {
		data, err := os.ReadFile(job.ResultPath.String)
		if err == nil {
			res.Path = job.ResultPath.String
			res.Content = string(data)
		} else {
			a.logger.Warn("result file unreadable, using stored transcript", "job_id", id, "error", err)
		}
	}
	return res, nil
}

// ClassifyJob labels one completed job.
func (a *App) ClassifyJob(ctx context.Context, id int64) (*sqlc.TranscriptionJob, bool, error) {
	if err := a.persistOperation(fmt.Sprintf("job=%d", id)); err != nil {
		return nil, false, err
	}
	p, err := a.Processor()
	if err != nil {
		return nil, false, a.op.Fail(err)
	}
	job, ok, err := p.ClassifyJob(ctx, id, a.opts.DryRun)
	if err == nil && !ok {
		a.op.MarkFailed()
	}
	return job, ok, a.op.Fail(err)
}

// ClassifyBatch labels the selected completed jobs. The App's dry-run option wins over opts.
func (a *App) ClassifyBatch(ctx context.Context, opts jassist.BatchOptions) (*jassist.BatchResult, error) {
	if err := a.persistOperation(fmt.Sprintf("limit=%d force=%t ids=%v", opts.Limit, opts.Force, opts.JobIDs)); err != nil {
		return nil, err
	}
	p, err := a.Processor()
	if err != nil {
		return nil, a.op.Fail(err)
	}
	opts.DryRun = opts.DryRun || a.opts.DryRun
	res, err := p.ProcessBatch(ctx, opts)
	return res, a.op.Fail(err)
}

// ClassificationBatch returns batch id, or nil.
func (a *App) ClassificationBatch(id string) (*sqlc.ClassificationBatch, error) {
	return a.db.FindClassificationBatch(id)
}

// Usage reports the transcription usage of userID in r.
func (a *App) Usage(userID string, r metrics.DateRange) (*metrics.UsageReport, error) {
	return a.metrics.Report(userID, r)
}

// GetHistory returns the most recent operations.
func (a *App) GetHistory(limit int) ([]*sqlc.Operation, error) {
	return a.db.ListOperations(limit)
}

// RunWorker processes queued transcriptions until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	jobs, err := a.JobRunner()
	if err != nil {
		return err
	}
	a.logger.Info("transcription worker started", "queue", a.cfg.Queue.Type, "concurrency", a.cfg.Queue.Concurrency)
	return a.queue.Run(ctx, jobs.HandleTask)
}

// Close finalizes the operation and closes all resources.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.CurrentStatus()); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.queue.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing queue: %w", err)
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
