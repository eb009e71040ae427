package jassist

import "context"

// TranscribeRequest is one call to the speech API. Empty Language and Prompt are omitted from the request.
type TranscribeRequest struct {
	Path           string
	Model          string
	Language       string
	Prompt         string
	ResponseFormat string
}

// CostEstimate is the projected price of transcribing a given duration.
type CostEstimate struct {
	DurationSeconds  float64 `json:"duration_seconds"`
	DurationMinutes  float64 `json:"duration_minutes"`
	Model            string  `json:"model"`
	PerMinuteCost    float64 `json:"per_minute_cost"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// SpeechClient turns audio into text through a remote speech-to-text API.
type SpeechClient interface {
	// Transcribe returns the decoded response. Textual response formats come back as {"text": body}.
	// Failures are *TransportError.
	Transcribe(ctx context.Context, req TranscribeRequest) (map[string]any, error)

	// EstimateCost prices durationSeconds of audio for model.
	EstimateCost(durationSeconds float64, model string) CostEstimate
}
