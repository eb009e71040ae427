package jassist

import "context"

// MaxUploadBytes is the largest file the speech API accepts.
const MaxUploadBytes = 25 * 1024 * 1024

// AudioInfo is the outcome of validating one audio file.
type AudioInfo struct {
	Path              string
	Size              int64
	Duration          float64 // seconds, 0 when unknown
	MimeType          string
	NeedsProcessing   bool
	RecommendedFormat string
	Oversized         bool
}

// AudioChunk is one piece of a split file. Offset is its start within the original, in seconds.
type AudioChunk struct {
	Path   string
	Offset float64
}

// AudioPreprocessor validates and prepares audio for the speech API.
// Files it creates are temporary; the caller removes them.
type AudioPreprocessor interface {
	// Validate checks existence, extension and content. Unusable files yield a *ValidationError.
	Validate(ctx context.Context, path string) (*AudioInfo, error)

	// Convert transcodes path to format (e.g. "mp3") and returns the new path.
	// A file already in that format is returned unchanged.
	Convert(ctx context.Context, path, format string) (string, error)

	// Split cuts path into time-bounded chunks no larger than maxBytes each.
	Split(ctx context.Context, path string, maxBytes int64) ([]AudioChunk, error)
}
