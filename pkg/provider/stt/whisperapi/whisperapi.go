// Package whisperapi provides an stt.Transcriber backed by the OpenAI audio
// transcription REST API (or any server implementing the same endpoint, such
// as a self-hosted whisper.cpp server or a LiteLLM proxy).
//
// Each chunk is uploaded as a multipart/form-data POST to
// /v1/audio/transcriptions with the model, language, and response_format
// fields the API expects. HTTP status codes are mapped onto the stt sentinel
// errors so callers can distinguish a bad API key from a transient rate limit
// without parsing backend-specific bodies.
//
// Usage:
//
//	t := whisperapi.New(apiKey,
//	    whisperapi.WithLanguage("ja"),
//	    whisperapi.WithTimeout(30*time.Second),
//	)
//	res, err := t.Transcribe(ctx, chunk)
package whisperapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kaigi-app/kaigi/pkg/provider/stt"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultModel    = "whisper-1"
	defaultLanguage = "ja"
	defaultTimeout  = 60 * time.Second

	// maxErrorBodyBytes caps how much of an error response is kept for the
	// TransportError message.
	maxErrorBodyBytes = 2048
)

// Compile-time assertion that Client implements stt.Transcriber.
var _ stt.Transcriber = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root (e.g., a local
// whisper-compatible server or a proxy). Defaults to the OpenAI API.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the transcription model identifier. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithLanguage sets the ISO-639-1 language hint sent with every request
// (e.g., "ja", "en"). Defaults to "ja".
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// WithTimeout bounds each transcription request. Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client implements stt.Transcriber against the OpenAI transcription API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// transcriptionResponse is the JSON body returned for response_format=json.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe implements stt.Transcriber.
func (c *Client) Transcribe(ctx context.Context, chunk stt.Chunk) (stt.Result, error) {
	if len(chunk.Data) == 0 {
		return stt.Result{}, fmt.Errorf("whisperapi: empty chunk: %w", stt.ErrInvalidAudio)
	}

	body, contentType, err := c.buildForm(chunk)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, classifyStatus(resp)
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: decode response: %w", err)
	}

	return stt.Result{
		Text:     strings.TrimSpace(tr.Text),
		Language: c.language,
	}, nil
}

// buildForm assembles the multipart request body. Field names follow the
// OpenAI API: file, model, language, response_format.
func (c *Client) buildForm(chunk stt.Chunk) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(chunk.Data); err != nil {
		return nil, "", err
	}
	for field, value := range map[string]string{
		"model":           c.model,
		"language":        c.language,
		"response_format": "json",
	} {
		if err := w.WriteField(field, value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// classifyStatus maps a non-200 response onto the stt error taxonomy.
func classifyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	detail := strings.TrimSpace(string(body))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("whisperapi: %w: %s", stt.ErrAuth, detail)
	case http.StatusTooManyRequests:
		return fmt.Errorf("whisperapi: %w: %s", stt.ErrRateLimited, detail)
	case http.StatusBadRequest:
		return fmt.Errorf("whisperapi: %w: %s", stt.ErrInvalidAudio, detail)
	default:
		return &stt.TransportError{Status: resp.StatusCode, Body: detail}
	}
}
