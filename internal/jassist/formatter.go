package jassist

// Transcript is a speech response rendered into one output format.
type Transcript struct {
	Text      string
	Content   string // Text rendered in the requested output format
	Language  string
	Duration  float64
	Summary   string
	WordCount int
}

// ResultFormatter renders speech responses and writes them to the results directory.
type ResultFormatter interface {
	// Render joins one response per chunk, in order, shifting each chunk's segments by its offset.
	Render(responses []map[string]any, offsets []float64, format string) (*Transcript, error)

	// Save writes content next to the other results for sourcePath and returns the new path.
	Save(userID, content, format, sourcePath string) (string, error)
}
