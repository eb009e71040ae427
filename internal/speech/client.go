// Package speech is a client for the OpenAI audio transcription endpoint.
package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

// DefaultModel is used when a request names none. Its rate also prices unknown models.
const DefaultModel = "gpt-4o-transcribe"

// Per-minute prices in USD.
var pricing = map[string]float64{
	"gpt-4o-transcribe":      0.006,
	"gpt-4o-mini-transcribe": 0.003,
	"whisper-1":              0.006,
}

var responseFormats = map[string]bool{
	"json":         true,
	"text":         true,
	"srt":          true,
	"verbose_json": true,
	"vtt":          true,
}

// Settings configures a Client.
type Settings struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Validate reports what is missing.
func (s Settings) Validate() error {
	if s.APIKey == "" {
		return jassist.Configf("OpenAI API key is not configured")
	}
	if s.BaseURL == "" {
		return jassist.Configf("transcription base_url is required")
	}
	if s.Timeout < 0 {
		return jassist.Configf("transcription timeout must not be negative")
	}
	return nil
}

// Client calls POST <base>/audio/transcriptions.
type Client struct {
	settings Settings
	http     *http.Client
	logger   jassist.Logger
}

// NewClient creates a Client. A nil httpClient gets one with settings.Timeout.
func NewClient(settings Settings, httpClient *http.Client, logger jassist.Logger) (*Client, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: settings.Timeout}
	}
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	return &Client{settings: settings, http: httpClient, logger: logger}, nil
}

// NewClientFromConfig builds a Client from the transcription section and the API key.
func NewClientFromConfig(cfg config.TranscriptionConfig, apiKey string, logger jassist.Logger) (*Client, error) {
	return NewClient(Settings{
		BaseURL: cfg.BaseURL,
		APIKey:  apiKey,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil, logger)
}

// Transcribe uploads req.Path as multipart form data.
func (c *Client) Transcribe(ctx context.Context, req jassist.TranscribeRequest) (map[string]any, error) {
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if !responseFormats[req.ResponseFormat] {
		req.ResponseFormat = "json"
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return nil, jassist.Invalidf("File not found: %s", req.Path)
	}
	defer f.Close()

	body, contentType := multipartBody(f, req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, fmt.Errorf("building transcription request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	httpReq.Header.Set("Content-Type", contentType)

	c.logger.Debug("sending transcription request", "model", req.Model, "format", req.ResponseFormat, "language", req.Language)
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Error("transcription request failed", "error", err)
		return nil, jassist.NewTransportError(jassist.KindConnection, 0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, jassist.NewTransportError(jassist.KindConnection, resp.StatusCode, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp.StatusCode, data)
	}
	c.logger.Info("transcription completed", "elapsed", time.Since(start).Round(time.Millisecond))

	if req.ResponseFormat == "json" || req.ResponseFormat == "verbose_json" {
		var result map[string]any
		if err := json.Unmarshal(data, &result); err != nil {
			c.logger.Error("decoding transcription response", "error", err)
			return nil, jassist.NewTransportError(jassist.KindAPIError, resp.StatusCode, "malformed response", err)
		}
		return result, nil
	}
	return map[string]any{"text": string(data)}, nil
}

// multipartBody streams the form so the audio is never held in memory.
func multipartBody(f *os.File, req jassist.TranscribeRequest) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			fields := [][2]string{
				{"model", req.Model},
				{"response_format", req.ResponseFormat},
			}
			if req.Language != "" {
				fields = append(fields, [2]string{"language", req.Language})
			}
			if req.Prompt != "" {
				fields = append(fields, [2]string{"prompt", req.Prompt})
			}
			for _, kv := range fields {
				if err := mw.WriteField(kv[0], kv[1]); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile("file", filepath.Base(req.Path))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) statusError(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
		detail = ae.Error.Message
	}
	kind := jassist.KindForStatus(status)
	c.logger.Error("transcription api error", "status", status, "kind", kind, "detail", detail)
	return jassist.NewTransportError(kind, status, detail, errors.New(detail))
}

// EstimateCost prices durationSeconds for model. Unknown models use the DefaultModel rate.
func (c *Client) EstimateCost(durationSeconds float64, model string) jassist.CostEstimate {
	return EstimateCost(durationSeconds, model)
}

// EstimateCost is the table lookup behind Client.EstimateCost.
func EstimateCost(durationSeconds float64, model string) jassist.CostEstimate {
	rate, ok := pricing[model]
	if !ok {
		rate = pricing[DefaultModel]
	}
	minutes := durationSeconds / 60
	return jassist.CostEstimate{
		DurationSeconds:  durationSeconds,
		DurationMinutes:  minutes,
		Model:            model,
		PerMinuteCost:    rate,
		EstimatedCostUSD: minutes * rate,
	}
}

// Compile-time check that Client implements jassist.SpeechClient interface
var _ jassist.SpeechClient = (*Client)(nil)
