package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"jassist-go/internal/jassist"
)

// StubAudio is an AudioPreprocessor that never shells out.
// Validate stats the real file; Convert and Split write copies next to it.
type StubAudio struct {
	mu sync.Mutex

	// Duration is reported by Validate for every file.
	Duration float64
	// ValidateErr, ConvertErr and SplitErr are returned when set.
	ValidateErr error
	ConvertErr  error
	SplitErr    error
	// Chunks is how many pieces Split produces. Zero means one per started maxBytes.
	Chunks int
	// ConvertedSize, when set, is the size of every file Convert writes instead of a copy.
	ConvertedSize int64

	Converted  []string
	SplitFiles []string
}

var _ jassist.AudioPreprocessor = (*StubAudio)(nil)

// NewStubAudio creates a StubAudio.
func NewStubAudio() *StubAudio {
	return &StubAudio{}
}

// Validate reports mp3 and wav files as ready and everything else as needing conversion.
func (a *StubAudio) Validate(_ context.Context, path string) (*jassist.AudioInfo, error) {
	if a.ValidateErr != nil {
		return nil, a.ValidateErr
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, jassist.Invalidf("File not found: %s", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	info := &jassist.AudioInfo{
		Path:      path,
		Size:      st.Size(),
		Duration:  a.Duration,
		MimeType:  "audio/mpeg",
		Oversized: st.Size() > jassist.MaxUploadBytes,
	}
	if ext != ".mp3" && ext != ".wav" {
		info.NeedsProcessing = true
		info.RecommendedFormat = "mp3"
	}
	return info, nil
}

func (a *StubAudio) Convert(_ context.Context, path, format string) (string, error) {
	if a.ConvertErr != nil {
		return "", a.ConvertErr
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + "_converted." + format
	if a.ConvertedSize > 0 {
		if err := os.WriteFile(out, make([]byte, a.ConvertedSize), 0644); err != nil {
			return "", err
		}
	} else if err := copyFile(path, out); err != nil {
		return "", err
	}
	a.mu.Lock()
	a.Converted = append(a.Converted, out)
	a.mu.Unlock()
	return out, nil
}

func (a *StubAudio) Split(_ context.Context, path string, maxBytes int64) ([]jassist.AudioChunk, error) {
	if a.SplitErr != nil {
		return nil, a.SplitErr
	}
	n := a.Chunks
	if n == 0 {
		st, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		n = int((st.Size() + maxBytes - 1) / maxBytes)
	}

	ext := filepath.Ext(path)
	chunks := make([]jassist.AudioChunk, 0, n)
	for i := range n {
		out := fmt.Sprintf("%s_chunk%d%s", strings.TrimSuffix(path, ext), i, ext)
		if err := os.WriteFile(out, []byte("chunk"), 0644); err != nil {
			return nil, err
		}
		chunks = append(chunks, jassist.AudioChunk{Path: out, Offset: float64(i) * 60})
		a.mu.Lock()
		a.SplitFiles = append(a.SplitFiles, out)
		a.mu.Unlock()
	}
	return chunks, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

// WriteFile creates a file of size bytes named name in dir and returns its path.
func WriteFile(t testing.TB, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
