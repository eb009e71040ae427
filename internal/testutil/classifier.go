package testutil

import (
	"context"
	"sync"

	"jassist-go/internal/jassist"
)

// StubClassifier is a Classifier that answers from a function.
type StubClassifier struct {
	mu    sync.Mutex
	calls []jassist.ClassifyOptions

	// Answer produces the assistant's reply. The default answers "note".
	Answer func(text string, opts jassist.ClassifyOptions) (string, error)
}

var _ jassist.Classifier = (*StubClassifier)(nil)

func NewStubClassifier() *StubClassifier {
	return &StubClassifier{}
}

func (c *StubClassifier) ClassifyText(_ context.Context, text string, opts jassist.ClassifyOptions) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, opts)
	answer := c.Answer
	c.mu.Unlock()

	if answer != nil {
		return answer(text, opts)
	}
	return "note", nil
}

// Calls returns the options of every call so far.
func (c *StubClassifier) Calls() []jassist.ClassifyOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]jassist.ClassifyOptions(nil), c.calls...)
}
