package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jassist-go/internal/testutil"
)

func TestFormatter_RenderJoinsChunks(t *testing.T) {
	f := NewFormatter(NewWriter(testutil.FixedClock(), "20060102_150405", nil), t.TempDir())

	responses := []map[string]any{
		{"text": "First part. ", "language": "en", "duration": 60.0, "segments": []any{
			map[string]any{"start": 0.0, "end": 2.5, "text": "First part."},
		}},
		{"text": "Second part.", "duration": 30.0, "segments": []any{
			map[string]any{"start": 1.0, "end": 3.0, "text": "Second part."},
		}},
	}

	got, err := f.Render(responses, []float64{0, 60}, FormatSRT)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got.Text != "First part. Second part." {
		t.Errorf("Text = %q", got.Text)
	}
	if got.WordCount != 4 {
		t.Errorf("WordCount = %d, want 4", got.WordCount)
	}
	if got.Duration != 90 {
		t.Errorf("Duration = %v, want 90", got.Duration)
	}
	if !strings.Contains(got.Content, "00:01:01,000 --> 00:01:03,000") {
		t.Errorf("Content missing shifted segment:\n%s", got.Content)
	}
}

func TestFormatter_RenderRejectsEmpty(t *testing.T) {
	f := NewFormatter(NewWriter(testutil.FixedClock(), "20060102_150405", nil), t.TempDir())
	if _, err := f.Render(nil, nil, FormatTxt); err == nil {
		t.Error("Render(nil) error = nil, want error")
	}
}

func TestFormatter_SavePerUser(t *testing.T) {
	dir := t.TempDir()
	f := NewFormatter(NewWriter(testutil.FixedClock(), "20060102_150405", nil), dir)

	path, err := f.Save("u1", "hello", FormatTxt, "/downloads/u1/memo.m4a")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	want := filepath.Join(dir, "u1", "memo_20240115_103000.txt")
	if path != want {
		t.Errorf("Save() = %q, want %q", path, want)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
}
