// Package assistant classifies text through the OpenAI Assistants v2 thread/run protocol.
package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"jassist-go/internal/config"
	"jassist-go/internal/database/sqlc"
	"jassist-go/internal/jassist"
)

// Retry budget for run creation.
const (
	MaxRetries    = 3
	RetryDelay    = 2 * time.Second
	BackoffFactor = 2
)

// MockResponse is returned in debug mode when no API key is configured.
const MockResponse = `{"classifications":[{"text":"mock text","category":"diary"}]}`

// MetricsSink stores one row per classification outcome. jassist.Database satisfies it.
type MetricsSink interface {
	CreateClassificationMetric(metric *sqlc.ClassificationMetric) error
}

// Settings configures an Adapter.
type Settings struct {
	AssistantName   string
	Instructions    string
	ParseTemplate   string
	Model           string
	Temperature     float64
	ResponseFormat  string
	SaveUsageStats  bool
	ThreadRetention time.Duration // 0 keeps the persistent thread forever
	PollInterval    time.Duration
	RunTimeout      time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	BackoffFactor   int
	Debug           bool
}

// Validate reports the first invalid field.
func (s Settings) Validate() error {
	switch {
	case s.Model == "":
		return jassist.Configf("classification model is required")
	case s.ParseTemplate == "":
		return jassist.Configf("parse entry prompt is required")
	case s.PollInterval <= 0:
		return jassist.Configf("poll interval must be positive")
	case s.RunTimeout <= 0:
		return jassist.Configf("run timeout must be positive")
	case s.MaxRetries < 0:
		return jassist.Configf("max retries must not be negative")
	case s.BackoffFactor < 1:
		return jassist.Configf("backoff factor must be at least 1")
	}
	return nil
}

// SettingsFromConfig converts the classification section and prompts into Settings.
func SettingsFromConfig(cfg config.ClassificationConfig, prompts config.Prompts, debug bool) Settings {
	instructions, ok := prompts.Template(config.PromptAssistantInstructions)
	if !ok {
		instructions = config.DefaultAssistantInstructions
	}
	parse, ok := prompts.Template(config.PromptParseEntry)
	if !ok {
		parse = config.DefaultPrompts()[config.PromptParseEntry].Template
	}
	return Settings{
		AssistantName:   cfg.AssistantName,
		Instructions:    instructions,
		ParseTemplate:   parse,
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		ResponseFormat:  cfg.ResponseFormat,
		SaveUsageStats:  cfg.SaveUsageStats,
		ThreadRetention: time.Duration(cfg.ThreadRetentionDays) * 24 * time.Hour,
		PollInterval:    time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		RunTimeout:      time.Duration(cfg.RunTimeoutSeconds) * time.Second,
		MaxRetries:      MaxRetries,
		RetryDelay:      RetryDelay,
		BackoffFactor:   BackoffFactor,
		Debug:           debug,
	}
}

// NewAdapterFromConfig builds the HTTP client and Adapter for cfg. An empty apiKey leaves the
// adapter in mock mode when debug is set.
func NewAdapterFromConfig(cfg config.ClassificationConfig, apiKey string, debug bool, prompts config.Prompts, sessions SessionStore, metrics MetricsSink, clock jassist.Clock, logger jassist.Logger) (*Adapter, error) {
	var api API
	if apiKey != "" {
		api = NewClient(cfg.BaseURL, apiKey, &http.Client{Timeout: 60 * time.Second}, logger)
	}
	return NewAdapter(SettingsFromConfig(cfg, prompts, debug), api, sessions, metrics, clock, logger)
}

// Adapter implements jassist.Classifier.
type Adapter struct {
	settings Settings
	api      API // nil in mock mode
	sessions SessionStore
	metrics  MetricsSink
	clock    jassist.Clock
	logger   jassist.Logger
	prompt   *template.Template

	mu      sync.Mutex
	session *Session
}

// NewAdapter creates an Adapter. A nil api is allowed only with settings.Debug, in which case
// every call returns MockResponse.
func NewAdapter(settings Settings, api API, sessions SessionStore, metrics MetricsSink, clock jassist.Clock, logger jassist.Logger) (*Adapter, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if api == nil && !settings.Debug {
		return nil, jassist.Configf("OpenAI API key is not configured")
	}
	if logger == nil {
		logger = jassist.NewNopLogger()
	}

	// A template that does not parse is sent verbatim with the text appended.
	tmpl, err := template.New("parse_entry").Option("missingkey=error").Parse(settings.ParseTemplate)
	if err != nil {
		logger.Warn("parse entry prompt is not a valid template", "error", err)
		tmpl = nil
	}

	return &Adapter{
		settings: settings,
		api:      api,
		sessions: sessions,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
		prompt:   tmpl,
	}, nil
}

type promptVars struct {
	EntryContent string
}

// buildPrompt renders the parse template, falling back to template + blank line + text.
func (a *Adapter) buildPrompt(text string) string {
	if a.prompt != nil {
		var b strings.Builder
		if err := a.prompt.Execute(&b, promptVars{EntryContent: text}); err == nil {
			return b.String()
		} else {
			a.logger.Warn("rendering parse entry prompt failed", "error", err)
		}
	}
	return a.settings.ParseTemplate + "\n\n" + text
}

// outcome is what one ClassifyText call produced, for the metrics row.
type outcome struct {
	answer string
	usage  *Usage
	prompt string
	err    error
}

// ClassifyText sends text through the assistant and returns the first text block of its answer.
func (a *Adapter) ClassifyText(ctx context.Context, text string, opts jassist.ClassifyOptions) (string, error) {
	if a.api == nil {
		a.logger.Warn("no OpenAI API key in debug mode, returning mock classification")
		return MockResponse, nil
	}
	if strings.TrimSpace(text) == "" {
		return "", jassist.Invalidf("No content to classify")
	}

	start := a.clock.Now()
	out := a.classify(ctx, text, opts)
	a.record(opts, out, a.clock.Now().Sub(start))

	if out.err != nil {
		return "", out.err
	}
	a.logger.Info("classification successful", "job_id", opts.JobID, "elapsed", a.clock.Now().Sub(start))
	return out.answer, nil
}

func (a *Adapter) classify(ctx context.Context, text string, opts jassist.ClassifyOptions) outcome {
	out := outcome{prompt: a.buildPrompt(text)}

	assistantID, err := a.assistantID(ctx)
	if err != nil {
		out.err = fmt.Errorf("resolving assistant: %w", err)
		return out
	}

	var threadID string
	if opts.ForceNewThread {
		t, err := a.api.CreateThread(ctx)
		if err != nil {
			out.err = fmt.Errorf("creating temporary thread: %w", err)
			return out
		}
		threadID = t.ID
		a.logger.Debug("created temporary thread", "thread_id", threadID)
	} else {
		threadID, err = a.threadID(ctx)
		if err != nil {
			out.err = fmt.Errorf("resolving thread: %w", err)
			return out
		}
	}

	if err := a.api.CreateMessage(ctx, threadID, out.prompt); err != nil {
		out.err = fmt.Errorf("posting message: %w", err)
		return out
	}

	attempts := a.settings.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		answer, usage, err := a.runOnce(ctx, threadID, assistantID)
		if err == nil {
			out.answer, out.usage = answer, usage
			return out
		}
		if errors.Is(err, errNoAssistant) {
			out.err = &jassist.ClassificationError{Attempts: attempt, Err: err}
			return out
		}
		if !a.retryable(ctx, err) {
			out.err = err
			return out
		}
		if attempt >= attempts {
			out.err = &jassist.ClassificationError{Attempts: attempt, Err: err}
			return out
		}

		delay := a.backoff(attempt)
		a.logger.Warn("classification attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			out.err = ctx.Err()
			return out
		case <-time.After(delay):
		}
	}
}

// backoff returns RetryDelay * BackoffFactor^(attempt-1).
func (a *Adapter) backoff(attempt int) time.Duration {
	d := a.settings.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= time.Duration(a.settings.BackoffFactor)
	}
	return d
}

var (
	errRunFailed   = errors.New("run did not complete")
	errRunTimeout  = errors.New("run timed out")
	errNoAssistant = errors.New("no response from classification assistant")
)

// retryable: failed or timed-out runs and retryable transport kinds consume the retry budget.
func (a *Adapter) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, errRunFailed) || errors.Is(err, errRunTimeout) {
		return true
	}
	if te, ok := jassist.AsTransportError(err); ok {
		return te.Retryable()
	}
	return false
}

// runOnce creates a run and polls it until it leaves queued/in_progress or RunTimeout passes.
func (a *Adapter) runOnce(ctx context.Context, threadID, assistantID string) (string, *Usage, error) {
	run, err := a.api.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		return "", nil, err
	}

	deadline := time.NewTimer(a.settings.RunTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(a.settings.PollInterval)
	defer ticker.Stop()

	for run.Pending() {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-deadline.C:
			a.cancelRun(threadID, run.ID)
			return "", nil, fmt.Errorf("%w after %s: run %s", errRunTimeout, a.settings.RunTimeout, run.ID)
		case <-ticker.C:
			next, err := a.api.RetrieveRun(ctx, threadID, run.ID)
			if err != nil {
				return "", nil, err
			}
			run = next
		}
	}

	if run.Status != RunCompleted {
		msg := "Run failed with status: " + run.Status
		if run.LastError != nil {
			msg += " - " + run.LastError.Message
		}
		return "", nil, fmt.Errorf("%w: %s", errRunFailed, msg)
	}

	messages, err := a.api.ListMessages(ctx, threadID)
	if err != nil {
		return "", nil, err
	}
	for _, m := range messages {
		if m.Role != "assistant" {
			continue
		}
		for _, c := range m.Content {
			if c.Type == "text" && c.Text != nil {
				return c.Text.Value, run.Usage, nil
			}
		}
		return "", run.Usage, nil
	}
	return "", nil, errNoAssistant
}

// cancelRun is best effort; a thread with an active run rejects new runs.
func (a *Adapter) cancelRun(threadID, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.api.CancelRun(ctx, threadID, runID); err != nil {
		a.logger.Warn("cancelling timed out run failed", "run_id", runID, "error", err)
	}
}

func (a *Adapter) loadSession(ctx context.Context) (*Session, error) {
	if a.session != nil {
		return a.session, nil
	}
	sess, err := a.sessions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading classification session: %w", err)
	}
	a.session = sess
	return sess, nil
}

// assistantID reuses the cached assistant when it can still be retrieved.
func (a *Adapter) assistantID(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, err := a.loadSession(ctx)
	if err != nil {
		return "", err
	}
	if sess.AssistantID != "" {
		asst, err := a.api.RetrieveAssistant(ctx, sess.AssistantID)
		if err == nil {
			return asst.ID, nil
		}
		a.logger.Warn("cached assistant not retrievable, creating a new one", "assistant_id", sess.AssistantID, "error", err)
	}

	a.logger.Info("creating classification assistant", "name", a.settings.AssistantName, "model", a.settings.Model)
	asst, err := a.api.CreateAssistant(ctx, AssistantParams{
		Name:           a.settings.AssistantName,
		Instructions:   a.settings.Instructions,
		Model:          a.settings.Model,
		Temperature:    a.settings.Temperature,
		ResponseFormat: a.settings.ResponseFormat,
	})
	if err != nil {
		return "", err
	}
	sess.AssistantID = asst.ID
	if err := a.sessions.Save(ctx, sess); err != nil {
		return "", err
	}
	return asst.ID, nil
}

// threadID reuses the persistent thread while it is retrievable and younger than ThreadRetention.
func (a *Adapter) threadID(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, err := a.loadSession(ctx)
	if err != nil {
		return "", err
	}
	now := a.clock.Now()
	if sess.ThreadID != "" {
		expired := a.settings.ThreadRetention > 0 && !sess.ThreadCreatedAt.IsZero() &&
			now.Sub(sess.ThreadCreatedAt) > a.settings.ThreadRetention
		if expired {
			a.logger.Info("persistent thread expired, replacing it", "thread_id", sess.ThreadID, "created_at", sess.ThreadCreatedAt)
		} else {
			t, err := a.api.RetrieveThread(ctx, sess.ThreadID)
			if err == nil {
				return t.ID, nil
			}
			a.logger.Warn("cached thread not retrievable, creating a new one", "thread_id", sess.ThreadID, "error", err)
		}
	}

	t, err := a.api.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	sess.ThreadID = t.ID
	sess.ThreadCreatedAt = now
	if err := a.sessions.Save(ctx, sess); err != nil {
		return "", err
	}
	a.logger.Info("created classification thread", "thread_id", t.ID)
	return t.ID, nil
}

// record writes the metrics row for one ClassifyText call.
func (a *Adapter) record(opts jassist.ClassifyOptions, out outcome, elapsed time.Duration) {
	if !a.settings.SaveUsageStats || a.metrics == nil {
		return
	}

	m := &sqlc.ClassificationMetric{
		BatchID:          sql.NullString{String: opts.BatchID, Valid: opts.BatchID != ""},
		JobID:            sql.NullInt64{Int64: opts.JobID, Valid: opts.JobID != 0},
		ProcessingTimeMs: elapsed.Milliseconds(),
		Success:          out.err == nil,
		ModelUsed:        a.settings.Model,
	}
	if out.err != nil {
		m.ErrorMessage = sql.NullString{String: out.err.Error(), Valid: true}
	} else {
		m.PromptTokens, m.CompletionTokens, m.TotalTokens, m.EstimatedCostUsd = a.cost(out)
	}

	if err := a.metrics.CreateClassificationMetric(m); err != nil {
		a.logger.Error("failed to record classification metrics", "error", err)
	}
}

// cost uses provider usage when present, otherwise length/4 token estimates.
func (a *Adapter) cost(out outcome) (prompt, completion, total int64, usd float64) {
	if out.usage != nil {
		prompt, completion = out.usage.PromptTokens, out.usage.CompletionTokens
		total = prompt + completion
		perPrompt, perCompletion := 0.01, 0.03
		if strings.Contains(a.settings.Model, "gpt-4") {
			perPrompt, perCompletion = 0.03, 0.06
		}
		usd = float64(prompt)/1000*perPrompt + float64(completion)/1000*perCompletion
		return
	}
	prompt = int64(len(out.prompt) / 4)
	completion = int64(len(out.answer) / 4)
	total = prompt + completion
	usd = float64(total) / 1000 * 0.02
	return
}

// Compile-time check that Adapter implements jassist.Classifier interface
var _ jassist.Classifier = (*Adapter)(nil)
