package jassist

import "context"

// ClassifyOptions links a classification call to the job and batch it belongs to.
type ClassifyOptions struct {
	JobID          int64
	BatchID        string
	ForceNewThread bool
}

// Classifier asks a language-model assistant to label a piece of text.
// It returns the assistant's raw answer; interpreting it is the caller's job.
type Classifier interface {
	ClassifyText(ctx context.Context, text string, opts ClassifyOptions) (string, error)
}
