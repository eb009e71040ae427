package testutil

import (
	"context"
	"path/filepath"
	"sync"

	"jassist-go/internal/jassist"
	"jassist-go/internal/speech"
)

// StubSpeech is a SpeechClient that answers from a function instead of the network.
type StubSpeech struct {
	mu       sync.Mutex
	requests []jassist.TranscribeRequest

	// Respond produces the response for a request. The default echoes "transcript of <file>".
	Respond func(req jassist.TranscribeRequest) (map[string]any, error)
}

var _ jassist.SpeechClient = (*StubSpeech)(nil)

// NewStubSpeech creates a StubSpeech with the echoing default.
func NewStubSpeech() *StubSpeech {
	return &StubSpeech{}
}

func (s *StubSpeech) Transcribe(_ context.Context, req jassist.TranscribeRequest) (map[string]any, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	respond := s.Respond
	s.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	return map[string]any{"text": "transcript of " + filepath.Base(req.Path)}, nil
}

// EstimateCost uses the real price table.
func (s *StubSpeech) EstimateCost(durationSeconds float64, model string) jassist.CostEstimate {
	return speech.EstimateCost(durationSeconds, model)
}

// Requests returns the requests received so far.
func (s *StubSpeech) Requests() []jassist.TranscribeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jassist.TranscribeRequest(nil), s.requests...)
}
