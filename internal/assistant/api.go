package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"jassist-go/internal/jassist"
)

// Run statuses reported by the Assistants API.
const (
	RunQueued     = "queued"
	RunInProgress = "in_progress"
	RunCompleted  = "completed"
)

type Assistant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type Run struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	LastError *RunError `json:"last_error"`
	Usage     *Usage    `json:"usage"`
}

// Pending reports whether the run has not reached a terminal status yet.
func (r *Run) Pending() bool {
	return r.Status == RunQueued || r.Status == RunInProgress
}

type TextContent struct {
	Value string `json:"value"`
}

type ContentBlock struct {
	Type string       `json:"type"`
	Text *TextContent `json:"text,omitempty"`
}

type Message struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// AssistantParams are the creation fields of an assistant.
type AssistantParams struct {
	Name           string  `json:"name"`
	Instructions   string  `json:"instructions"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	ResponseFormat string  `json:"-"`
}

// API is the subset of the Assistants v2 REST API the adapter drives.
type API interface {
	RetrieveAssistant(ctx context.Context, id string) (*Assistant, error)
	CreateAssistant(ctx context.Context, params AssistantParams) (*Assistant, error)
	RetrieveThread(ctx context.Context, id string) (*Thread, error)
	CreateThread(ctx context.Context) (*Thread, error)
	CreateMessage(ctx context.Context, threadID, content string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

// Client calls the OpenAI Assistants v2 endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  jassist.Logger
}

// NewClient creates a Client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger jassist.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		logger:  logger,
	}
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Error("assistants request failed", "method", method, "path", path, "error", err)
		return jassist.NewTransportError(jassist.KindConnection, 0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return jassist.NewTransportError(jassist.KindConnection, resp.StatusCode, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(data))
		var eb apiErrorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error.Message != "" {
			detail = eb.Error.Message
		}
		kind := jassist.KindForStatus(resp.StatusCode)
		c.logger.Error("assistants api error", "method", method, "path", path, "status", resp.StatusCode, "detail", detail)
		return jassist.NewTransportError(kind, resp.StatusCode, detail, errors.New(detail))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return jassist.NewTransportError(jassist.KindAPIError, resp.StatusCode, "malformed response", err)
	}
	return nil
}

func (c *Client) RetrieveAssistant(ctx context.Context, id string) (*Assistant, error) {
	var a Assistant
	if err := c.call(ctx, http.MethodGet, "/assistants/"+url.PathEscape(id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) CreateAssistant(ctx context.Context, params AssistantParams) (*Assistant, error) {
	body := map[string]any{
		"name":         params.Name,
		"instructions": params.Instructions,
		"model":        params.Model,
		"temperature":  params.Temperature,
	}
	if params.ResponseFormat != "" {
		body["response_format"] = map[string]string{"type": params.ResponseFormat}
	}
	var a Assistant
	if err := c.call(ctx, http.MethodPost, "/assistants", body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) RetrieveThread(ctx context.Context, id string) (*Thread, error) {
	var t Thread
	if err := c.call(ctx, http.MethodGet, "/threads/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var t Thread
	if err := c.call(ctx, http.MethodPost, "/threads", map[string]any{}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateMessage(ctx context.Context, threadID, content string) error {
	body := map[string]string{"role": "user", "content": content}
	return c.call(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", body, nil)
}

func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	var r Run
	body := map[string]string{"assistant_id": assistantID}
	if err := c.call(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var r Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := c.call(ctx, http.MethodGet, path, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/cancel"
	return c.call(ctx, http.MethodPost, path, map[string]any{}, nil)
}

// ListMessages returns the newest messages first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	var list struct {
		Data []Message `json:"data"`
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages?order=desc&limit=20"
	if err := c.call(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// Compile-time check that Client implements API interface
var _ API = (*Client)(nil)
