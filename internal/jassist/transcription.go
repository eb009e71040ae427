package jassist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DryRunText is the text returned by a dry-run transcription.
const DryRunText = "DRY RUN - No actual transcription performed"

var outputFormats = map[string]bool{"txt": true, "text": true, "json": true, "srt": true, "vtt": true}

// TranscriptionSettings is the immutable per-process configuration of a Transcriber.
type TranscriptionSettings struct {
	Model            string
	Language         string
	Prompt           string
	ResponseFormat   string
	OutputFormat     string
	MaxAudioDuration float64 // seconds; longer files only log a warning
	WarnOnLargeFiles bool
	SplitOversized   bool
	DryRun           bool
}

// Validate reports the first invalid field.
func (s TranscriptionSettings) Validate() error {
	if s.Model == "" {
		return Configf("transcription model is required")
	}
	if !outputFormats[strings.ToLower(s.OutputFormat)] {
		return Configf("unknown transcription output format %q", s.OutputFormat)
	}
	return nil
}

// TranscriptionResult is the outcome of one TranscribeFile call. Failures set Error, never panic.
type TranscriptionResult struct {
	Success    bool    `json:"success"`
	Text       string  `json:"text,omitempty"`
	OutputFile string  `json:"output_file,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Model      string  `json:"model,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	WordCount  int     `json:"word_count,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// TranscriptionStats are counters kept across the lifetime of a Transcriber.
type TranscriptionStats struct {
	FilesFound       int     `json:"files_found"`
	FilesTranscribed int     `json:"files_transcribed"`
	Errors           int     `json:"errors"`
	TotalDuration    float64 `json:"total_duration"`
}

// Transcriber runs one file at a time through validate, prepare, transcribe, format and save.
type Transcriber struct {
	settings  TranscriptionSettings
	audio     AudioPreprocessor
	speech    SpeechClient
	formatter ResultFormatter
	metrics   MetricsRecorder
	logger    Logger

	mu    sync.Mutex
	stats TranscriptionStats
}

// NewTranscriber validates settings and creates a Transcriber.
func NewTranscriber(settings TranscriptionSettings, audio AudioPreprocessor, speech SpeechClient, formatter ResultFormatter, metrics MetricsRecorder, logger Logger) (*Transcriber, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Transcriber{
		settings:  settings,
		audio:     audio,
		speech:    speech,
		formatter: formatter,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Model returns the speech model jobs are created with.
func (t *Transcriber) Model() string { return t.settings.Model }

// Settings returns the Transcriber's settings.
func (t *Transcriber) Settings() TranscriptionSettings { return t.settings }

// Stats returns a copy of the counters.
func (t *Transcriber) Stats() TranscriptionStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Transcriber) count(f func(*TranscriptionStats)) {
	t.mu.Lock()
	f(&t.stats)
	t.mu.Unlock()
}

// TranscribeFile transcribes the audio file at path on behalf of userID.
func (t *Transcriber) TranscribeFile(ctx context.Context, userID, path string) *TranscriptionResult {
	if t.settings.DryRun {
		t.logger.Info("dry run, would transcribe file", "path", path)
		return &TranscriptionResult{Success: true, Text: DryRunText}
	}

	name := filepath.Base(path)
	t.logger.Info("beginning transcription", "file", name)
	t.count(func(s *TranscriptionStats) { s.FilesFound++ })

	info, err := t.audio.Validate(ctx, path)
	if err != nil {
		return t.fail(userID, "", fmt.Errorf("validating audio: %w", err))
	}

	if info.Duration > 0 {
		t.logger.Info("estimated duration", "file", name, "seconds", info.Duration)
		t.count(func(s *TranscriptionStats) { s.TotalDuration += info.Duration })
		if t.settings.WarnOnLargeFiles && t.settings.MaxAudioDuration > 0 && info.Duration > t.settings.MaxAudioDuration {
			t.logger.Warn("audio exceeds max duration, proceeding", "file", name, "seconds", info.Duration, "max", t.settings.MaxAudioDuration)
		}
	}

	if info.Oversized && !t.settings.SplitOversized {
		return t.fail(userID, "", Invalidf("File too large: %.2f MB (max: %d MB)", float64(info.Size)/(1024*1024), MaxUploadBytes/(1024*1024)))
	}

	cost := t.speech.EstimateCost(info.Duration, t.settings.Model)
	key, err := t.metrics.JobStarted(userID, JobStart{
		FileName: name,
		FileSize: info.Size,
		Duration: info.Duration,
		Model:    t.settings.Model,
		Cost:     &cost,
	})
	if err != nil {
		t.logger.Warn("recording job start failed", "file", name, "error", err)
	}

	chunks, cleanup, err := t.prepare(ctx, path, info)
	defer cleanup()
	if err != nil {
		return t.fail(userID, key, fmt.Errorf("audio preprocessing failed: %w", err))
	}

	responses := make([]map[string]any, 0, len(chunks))
	offsets := make([]float64, 0, len(chunks))
	for i, c := range chunks {
		if len(chunks) > 1 {
			t.logger.Info("transcribing chunk", "file", name, "chunk", i+1, "of", len(chunks))
		}
		resp, err := t.speech.Transcribe(ctx, TranscribeRequest{
			Path:           c.Path,
			Model:          t.settings.Model,
			Language:       t.settings.Language,
			Prompt:         t.settings.Prompt,
			ResponseFormat: t.settings.ResponseFormat,
		})
		if err != nil {
			return t.fail(userID, key, fmt.Errorf("transcription failed: %w", err))
		}
		responses = append(responses, resp)
		offsets = append(offsets, c.Offset)
	}

	tr, err := t.formatter.Render(responses, offsets, t.settings.OutputFormat)
	if err != nil {
		return t.fail(userID, key, fmt.Errorf("formatting transcript: %w", err))
	}

	out, err := t.formatter.Save(userID, tr.Content, t.settings.OutputFormat, path)
	if err != nil {
		return t.fail(userID, key, fmt.Errorf("saving transcript: %w", err))
	}

	if key != "" {
		if err := t.metrics.JobCompleted(userID, key, true, len(tr.Text), ""); err != nil {
			t.logger.Warn("recording job completion failed", "file", name, "error", err)
		}
	}

	duration := info.Duration
	if duration == 0 {
		duration = tr.Duration
	}

	t.count(func(s *TranscriptionStats) { s.FilesTranscribed++ })
	t.logger.Info("transcription completed", "file", name, "output", out)

	return &TranscriptionResult{
		Success:    true,
		Text:       tr.Text,
		OutputFile: out,
		Duration:   duration,
		Model:      t.settings.Model,
		Summary:    tr.Summary,
		WordCount:  tr.WordCount,
	}
}

// prepare converts and splits path as needed. cleanup removes every temporary file and is never nil.
func (t *Transcriber) prepare(ctx context.Context, path string, info *AudioInfo) ([]AudioChunk, func(), error) {
	var temps []string
	cleanup := func() {
		for _, p := range temps {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				t.logger.Warn("removing temporary audio failed", "path", p, "error", err)
			}
		}
	}

	prepared := path
	oversized := info.Oversized
	if info.NeedsProcessing {
		converted, err := t.audio.Convert(ctx, path, info.RecommendedFormat)
		if err != nil {
			return nil, cleanup, err
		}
		if converted != path {
			temps = append(temps, converted)
		}
		prepared = converted

		// Re-encoding can grow a file past the upload limit.
		st, err := os.Stat(converted)
		if err != nil {
			return nil, cleanup, fmt.Errorf("checking converted audio: %w", err)
		}
		oversized = st.Size() > MaxUploadBytes
		if oversized && !t.settings.SplitOversized {
			return nil, cleanup, Invalidf("Converted file too large: %.2f MB (max: %d MB)", float64(st.Size())/(1024*1024), MaxUploadBytes/(1024*1024))
		}
	}

	if !oversized {
		return []AudioChunk{{Path: prepared}}, cleanup, nil
	}

	chunks, err := t.audio.Split(ctx, prepared, MaxUploadBytes)
	if err != nil {
		return nil, cleanup, err
	}
	for _, c := range chunks {
		if c.Path != prepared && c.Path != path {
			temps = append(temps, c.Path)
		}
	}
	return chunks, cleanup, nil
}

func (t *Transcriber) fail(userID, key string, err error) *TranscriptionResult {
	t.logger.Error("transcription failed", "error", err)
	t.count(func(s *TranscriptionStats) { s.Errors++ })
	if key != "" {
		if merr := t.metrics.JobCompleted(userID, key, false, 0, err.Error()); merr != nil {
			t.logger.Warn("recording job completion failed", "error", merr)
		}
	}
	return &TranscriptionResult{Success: false, Error: err.Error(), Model: t.settings.Model}
}
