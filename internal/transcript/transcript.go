// Package transcript turns speech API responses into output files and summaries.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"jassist-go/internal/jassist"
)

// Output formats.
const (
	FormatText = "text"
	FormatTxt  = "txt"
	FormatJSON = "json"
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
)

// SummaryLength is the default maximum summary length in bytes, before the ellipsis.
const SummaryLength = 100

var extensions = map[string]string{
	FormatTxt:  ".txt",
	FormatText: ".txt",
	FormatJSON: ".json",
	FormatSRT:  ".srt",
	FormatVTT:  ".vtt",
}

// Segment is one timed piece of a transcript, in seconds.
type Segment struct {
	Start float64 `mapstructure:"start" json:"start"`
	End   float64 `mapstructure:"end" json:"end"`
	Text  string  `mapstructure:"text" json:"text"`
}

// Result is the part of a speech response the pipeline understands.
type Result struct {
	Text     string    `mapstructure:"text" json:"text"`
	Language string    `mapstructure:"language" json:"language,omitempty"`
	Duration float64   `mapstructure:"duration" json:"duration,omitempty"`
	Segments []Segment `mapstructure:"segments" json:"segments,omitempty"`

	// Raw is the response as received, used for json output. Nil for joined results.
	Raw map[string]any `mapstructure:"-" json:"-"`
}

// FromMap decodes a speech response. Unknown keys are kept only in Raw.
func FromMap(raw map[string]any) (*Result, error) {
	var r Result
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &r,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding transcription response: %w", err)
	}
	r.Raw = raw
	return &r, nil
}

// Join concatenates chunk results in order. Segment times are shifted by each chunk's offset.
func Join(parts []*Result, offsets []float64) *Result {
	if len(parts) == 1 {
		return parts[0]
	}
	joined := &Result{}
	texts := make([]string, 0, len(parts))
	for i, p := range parts {
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
		if joined.Language == "" {
			joined.Language = p.Language
		}
		var off float64
		if i < len(offsets) {
			off = offsets[i]
		}
		for _, s := range p.Segments {
			joined.Segments = append(joined.Segments, Segment{Start: s.Start + off, End: s.End + off, Text: s.Text})
		}
		joined.Duration = max(joined.Duration, off+p.Duration)
	}
	joined.Text = strings.Join(texts, " ")
	return joined
}

// Extension returns the file extension for format, ".txt" for unknown formats.
func Extension(format string) string {
	if ext, ok := extensions[strings.ToLower(format)]; ok {
		return ext
	}
	return ".txt"
}

// Format renders r. Unknown formats render as plain text.
func Format(r *Result, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		var v any = r
		if r.Raw != nil {
			v = r.Raw
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return "", fmt.Errorf("encoding transcript json: %w", err)
		}
		return strings.TrimSuffix(buf.String(), "\n"), nil
	case FormatSRT:
		return subtitles(r, "", srtTime, "1\n00:00:00,000 --> 99:59:59,999\n"), nil
	case FormatVTT:
		return subtitles(r, "WEBVTT\n\n", vttTime, "1\n00:00:00.000 --> 99:59:59.999\n"), nil
	default:
		return r.Text, nil
	}
}

func subtitles(r *Result, header string, stamp func(float64) string, fallback string) string {
	var b strings.Builder
	b.WriteString(header)
	if len(r.Segments) == 0 {
		b.WriteString(fallback)
		b.WriteString(strings.TrimSpace(r.Text))
		b.WriteString("\n")
		return b.String()
	}
	for i, s := range r.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, stamp(s.Start), stamp(s.End), strings.TrimSpace(s.Text))
	}
	return b.String()
}

func clock(seconds float64) (h, m, s, ms int) {
	if seconds < 0 {
		seconds = 0
	}
	total := int(math.Round(seconds * 1000))
	return total / 3600000, total / 60000 % 60, total / 1000 % 60, total % 1000
}

func srtTime(seconds float64) string {
	h, m, s, ms := clock(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func vttTime(seconds float64) string {
	h, m, s, ms := clock(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// Summarize keeps whole leading ". "-separated sentences while they fit in maxLength.
// A summary shorter than text ends in "...".
func Summarize(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	for _, sentence := range strings.Split(text, ". ") {
		if b.Len()+len(sentence)+2 > maxLength {
			break
		}
		b.WriteString(sentence)
		b.WriteString(". ")
	}
	summary := b.String()
	if len(summary) < len(text) {
		return strings.TrimSpace(summary) + "..."
	}
	return strings.TrimSpace(summary)
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Writer saves rendered transcripts as <stem>_<timestamp><ext> files.
type Writer struct {
	clock           jassist.Clock
	timestampFormat string
	logger          jassist.Logger
}

// NewWriter creates a Writer. timestampFormat is a Go time layout.
func NewWriter(clock jassist.Clock, timestampFormat string, logger jassist.Logger) *Writer {
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	return &Writer{clock: clock, timestampFormat: timestampFormat, logger: logger}
}

// Save writes content for sourcePath into dir and returns the new file's path.
// An existing file is never overwritten; a _<n> suffix is added instead.
func (w *Writer) Save(content, format, sourcePath, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating results directory: %w", err)
	}

	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stamp := w.clock.Now().Format(w.timestampFormat)
	ext := Extension(format)

	name := fmt.Sprintf("%s_%s%s", stem, stamp, ext)
	for n := 1; ; n++ {
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			name = fmt.Sprintf("%s_%s_%d%s", stem, stamp, n, ext)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating transcript file: %w", err)
		}
		if _, err := f.WriteString(content); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("writing transcript file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("closing transcript file: %w", err)
		}
		w.logger.Info("saved transcription", "path", path)
		return path, nil
	}
}
