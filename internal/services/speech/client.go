// Package speech transcribes project audio through the Groq-hosted Whisper
// endpoint.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vibeacademy/vidarr/internal/httpclient"
)

const (
	// DefaultBaseURL is the Groq OpenAI-compatible API root.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// Model is the transcription model.
	Model = "whisper-large-v3"

	// DefaultTimeout bounds a single transcription call. Whisper chews
	// through an hour of audio well inside this.
	DefaultTimeout = 300 * time.Second
)

// Segment is one transcript span with absolute timestamps in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is the parsed verbose_json response.
type Transcription struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Client calls the Groq transcription endpoint.
type Client struct {
	http    *httpclient.Client
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
}

// New creates a transcription client. A nil httpClient gets the default
// resilient client.
func New(httpClient *httpclient.Client, apiKey string) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewWithDefaults()
	}
	return &Client{
		http:    httpClient,
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		model:   Model,
		timeout: DefaultTimeout,
	}
}

// WithModel overrides the transcription model. Empty keeps the default.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithBaseURL overrides the API root, used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// WithTimeout overrides the per-call timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Transcribe uploads an audio file and returns the verbose transcription.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (*Transcription, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("speech: api key not configured")
	}

	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("speech: opening audio: %w", err)
	}
	defer audio.Close()

	body, contentType, err := buildTranscriptionForm(filepath.Base(audioPath), audio, c.model, language)
	if err != nil {
		return nil, fmt.Errorf("speech: building request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: transcription call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("speech: status %d: %s", resp.StatusCode, excerpt)
	}

	var result Transcription
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("speech: parsing response: %w", err)
	}
	if result.Language == "" {
		result.Language = language
	}
	return &result, nil
}

// buildTranscriptionForm assembles the multipart body for one call. The
// audio is buffered in full so the resilient client can safely retry.
func buildTranscriptionForm(filename string, audio io.Reader, model, language string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"model":           model,
		"language":        language,
		"response_format": "verbose_json",
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return &buf, mw.FormDataContentType(), nil
}

// PlainText joins segment texts into the sidecar .txt artifact content.
func PlainText(t *Transcription) string {
	if len(t.Segments) == 0 {
		return strings.TrimSpace(t.Text)
	}
	lines := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n")
}
