// Package audio validates audio files and prepares them for the speech API with ffmpeg.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

// RecommendedFormat is what non-optimal inputs are converted to.
const RecommendedFormat = "mp3"

// MinChunkSeconds bounds how short a split chunk may be.
const MinChunkSeconds = 10.0

var optimalFormats = map[string]bool{".mp3": true, ".wav": true}

// Runner executes an external tool and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. Standard error is folded into the returned error.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("running %s: %w", name, err)
		}
		return nil, fmt.Errorf("running %s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// Settings configures a Preprocessor.
type Settings struct {
	FFmpegPath  string
	FFprobePath string
	TempDir     string // "" uses os.TempDir()
}

// Validate reports missing tool paths.
func (s Settings) Validate() error {
	if s.FFmpegPath == "" {
		return jassist.Configf("ffmpeg path is required")
	}
	if s.FFprobePath == "" {
		return jassist.Configf("ffprobe path is required")
	}
	return nil
}

// Preprocessor implements jassist.AudioPreprocessor on top of ffmpeg and ffprobe.
type Preprocessor struct {
	settings Settings
	runner   Runner
	logger   jassist.Logger
}

// NewPreprocessor creates a Preprocessor. A nil runner uses ExecRunner.
func NewPreprocessor(settings Settings, runner Runner, logger jassist.Logger) (*Preprocessor, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	return &Preprocessor{settings: settings, runner: runner, logger: logger}, nil
}

// NewPreprocessorFromConfig builds a Preprocessor from the transcription section.
func NewPreprocessorFromConfig(cfg config.TranscriptionConfig, logger jassist.Logger) (*Preprocessor, error) {
	return NewPreprocessor(Settings{FFmpegPath: cfg.FFmpegPath, FFprobePath: cfg.FFprobePath}, nil, logger)
}

func (p *Preprocessor) tempDir() string {
	if p.settings.TempDir != "" {
		return p.settings.TempDir
	}
	return os.TempDir()
}

// Validate checks that path exists, has a supported extension and holds audio or video content.
func (p *Preprocessor) Validate(ctx context.Context, path string) (*jassist.AudioInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, jassist.Invalidf("File not found: %s", path)
		}
		return nil, fmt.Errorf("checking audio file: %w", err)
	}
	if info.IsDir() {
		return nil, jassist.Invalidf("Not a file: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !jassist.IsTranscribable(path) {
		return nil, jassist.Invalidf("Unsupported file format: %s", ext)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detecting audio content: %w", err)
	}
	if !isMediaType(mt) {
		return nil, jassist.Invalidf("File content is not audio: %s", mt.String())
	}

	result := &jassist.AudioInfo{
		Path:      path,
		Size:      info.Size(),
		MimeType:  mt.String(),
		Oversized: info.Size() > jassist.MaxUploadBytes,
	}
	if !optimalFormats[ext] {
		result.NeedsProcessing = true
		result.RecommendedFormat = RecommendedFormat
	}
	result.Duration = p.Duration(ctx, path)
	return result, nil
}

// isMediaType accepts audio/*, video/* and content too short or unusual to sniff.
func isMediaType(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "audio/") || strings.HasPrefix(s, "video/") {
			return true
		}
	}
	return mt.Is("application/octet-stream")
}

// Convert transcodes path with "ffmpeg -i in -y out". A file already in format is returned unchanged.
func (p *Preprocessor) Convert(ctx context.Context, path, format string) (string, error) {
	format = strings.TrimPrefix(strings.ToLower(format), ".")
	if strings.EqualFold(filepath.Ext(path), "."+format) {
		return path, nil
	}

	out, err := p.reserve(path, "", "."+format)
	if err != nil {
		return "", err
	}
	if _, err := p.runner.Run(ctx, p.settings.FFmpegPath, "-i", path, "-y", out); err != nil {
		os.Remove(out)
		p.logger.Error("audio conversion failed", "path", path, "format", format, "error", err)
		return "", fmt.Errorf("converting %s to %s: %w", filepath.Base(path), format, err)
	}
	if err := checkOutput(out); err != nil {
		return "", err
	}

	p.logger.Info("converted audio", "from", path, "to", out)
	return out, nil
}

// Split cuts path into chunks sized by the bytes-to-duration ratio, never shorter than MinChunkSeconds.
// A file within maxBytes is returned as a single chunk.
func (p *Preprocessor) Split(ctx context.Context, path string, maxBytes int64) ([]jassist.AudioChunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("checking audio file: %w", err)
	}
	if info.Size() <= maxBytes {
		return []jassist.AudioChunk{{Path: path}}, nil
	}

	duration := p.Duration(ctx, path)
	if duration <= 0 {
		return nil, jassist.Invalidf("Could not determine duration of %s", filepath.Base(path))
	}

	chunkSeconds := max(MinChunkSeconds, float64(maxBytes)/float64(info.Size())*duration)
	count := int(duration/chunkSeconds) + 1
	p.logger.Info("splitting audio", "path", path, "chunks", count, "chunk_seconds", chunkSeconds)

	ext := filepath.Ext(path)
	chunks := make([]jassist.AudioChunk, 0, count)
	cleanup := func() {
		for _, c := range chunks {
			os.Remove(c.Path)
		}
	}

	for i := range count {
		start := float64(i) * chunkSeconds
		if start >= duration {
			break
		}
		out, err := p.reserve(path, fmt.Sprintf("_chunk%d", i+1), ext)
		if err != nil {
			cleanup()
			return nil, err
		}
		_, err = p.runner.Run(ctx, p.settings.FFmpegPath,
			"-i", path,
			"-ss", formatSeconds(start),
			"-t", formatSeconds(chunkSeconds),
			"-c", "copy",
			"-y", out,
		)
		if err == nil {
			err = checkOutput(out)
		}
		if err != nil {
			os.Remove(out)
			cleanup()
			p.logger.Error("audio split failed", "path", path, "chunk", i+1, "error", err)
			return nil, fmt.Errorf("creating chunk %d of %s: %w", i+1, filepath.Base(path), err)
		}
		chunks = append(chunks, jassist.AudioChunk{Path: out, Offset: start})
	}
	return chunks, nil
}

// Duration returns the length of path in seconds, or 0 when it cannot be determined.
// WAV files are measured from their header; everything else through ffprobe.
func (p *Preprocessor) Duration(ctx context.Context, path string) float64 {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		d, err := wavDuration(path)
		if err == nil {
			return d
		}
		p.logger.Debug("reading wav header failed, trying ffprobe", "path", path, "error", err)
	}

	out, err := p.runner.Run(ctx, p.settings.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		p.logger.Warn("could not determine duration", "path", path, "error", err)
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		p.logger.Warn("could not parse duration", "path", path, "output", string(out))
		return 0
	}
	return d
}

// reserve creates an empty temp file named after path's stem.
func (p *Preprocessor) reserve(path, suffix, ext string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	f, err := os.CreateTemp(p.tempDir(), stem+suffix+"-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return name, nil
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("ffmpeg output missing: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(path)
		return fmt.Errorf("ffmpeg produced an empty file: %s", path)
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// Compile-time check that Preprocessor implements jassist.AudioPreprocessor interface
var _ jassist.AudioPreprocessor = (*Preprocessor)(nil)
