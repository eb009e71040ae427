package transcript

import (
	"fmt"
	"path/filepath"

	"jassist-go/internal/jassist"
)

// Formatter implements jassist.ResultFormatter, saving under <dir>/<user>.
type Formatter struct {
	writer *Writer
	dir    string
}

var _ jassist.ResultFormatter = (*Formatter)(nil)

func NewFormatter(writer *Writer, dir string) *Formatter {
	return &Formatter{writer: writer, dir: dir}
}

func (f *Formatter) Render(responses []map[string]any, offsets []float64, format string) (*jassist.Transcript, error) {
	if len(responses) == 0 {
		return nil, fmt.Errorf("no transcription responses")
	}
	parts := make([]*Result, len(responses))
	for i, raw := range responses {
		r, err := FromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i+1, err)
		}
		parts[i] = r
	}
	joined := Join(parts, offsets)

	content, err := Format(joined, format)
	if err != nil {
		return nil, err
	}
	return &jassist.Transcript{
		Text:      joined.Text,
		Content:   content,
		Language:  joined.Language,
		Duration:  joined.Duration,
		Summary:   Summarize(joined.Text, SummaryLength),
		WordCount: WordCount(joined.Text),
	}, nil
}

func (f *Formatter) Save(userID, content, format, sourcePath string) (string, error) {
	return f.writer.Save(content, format, sourcePath, filepath.Join(f.dir, userID))
}
