// Package llm is the OpenRouter chat-completions client behind SEO
// generation, shorts and b-roll suggestions, transcript correction, and
// thumbnail image synthesis.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vibeacademy/vidarr/internal/httpclient"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// TextModel handles every text completion in the pipeline.
	TextModel = "openai/gpt-4o-mini"

	// ImageModel generates thumbnail art from a prompt plus reference frames.
	ImageModel = "google/gemini-3-pro-image-preview"
)

// Client talks to the OpenRouter chat-completions endpoint.
type Client struct {
	http       *httpclient.Client
	baseURL    string
	apiKey     string
	referer    string
	title      string
	model      string
	imageModel string
}

// New creates an OpenRouter client. A nil httpClient gets the default
// resilient client.
func New(httpClient *httpclient.Client, apiKey string) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewWithDefaults()
	}
	return &Client{
		http:       httpClient,
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		referer:    "http://localhost:8000",
		title:      "vidarr",
		model:      TextModel,
		imageModel: ImageModel,
	}
}

// WithBaseURL overrides the API root, used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// WithModels overrides the default text and image models. Empty values
// keep the current setting.
func (c *Client) WithModels(model, imageModel string) *Client {
	if model != "" {
		c.model = model
	}
	if imageModel != "" {
		c.imageModel = imageModel
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Message is one chat turn. Content is either a plain string or a slice of
// ContentPart for multimodal requests.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference, usually a base64 data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// TextMessage builds a plain text chat turn.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// ImageMessage builds a multimodal turn pairing text with reference images.
func ImageMessage(role, text string, imageDataURLs ...string) Message {
	parts := make([]ContentPart, 0, len(imageDataURLs)+1)
	for _, u := range imageDataURLs {
		parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: u}})
	}
	parts = append(parts, ContentPart{Type: "text", Text: text})
	return Message{Role: role, Content: parts}
}

// DataURL encodes raw image bytes as a base64 data URL for ImageMessage.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// CompletionRequest describes one chat completion call.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Temp is a convenience for CompletionRequest.Temperature.
func Temp(t float64) *float64 { return &t }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message responseMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type responseMessage struct {
	Content json.RawMessage `json:"content"`
	Images  []responseImage `json:"images"`
}

type responseImage struct {
	Type     string `json:"type"`
	B64JSON  string `json:"b64_json"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Complete runs a chat completion and returns the assistant text. The model
// defaults to TextModel.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("llm: api key not configured")
	}
	if req.Model == "" {
		req.Model = c.model
	}

	var resp chatResponse
	err := c.http.PostJSON(ctx, c.baseURL+"/chat/completions", c.headers(), chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("llm completion: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm completion: empty choices")
	}

	var text string
	if err := json.Unmarshal(resp.Choices[0].Message.Content, &text); err != nil {
		return "", fmt.Errorf("llm completion: non-text content: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ImageResult is the outcome of a GenerateImage call. RawResponse holds the
// verbatim API response body so callers can persist it for debugging when
// Image comes back empty.
type ImageResult struct {
	Image       []byte
	RawResponse []byte
}

// GenerateImage asks the image model for a rendered picture. Reference
// images ride along as data URLs in the same message.
func (c *Client) GenerateImage(ctx context.Context, prompt string, referenceDataURLs ...string) (*ImageResult, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("llm: api key not configured")
	}

	var msg Message
	if len(referenceDataURLs) > 0 {
		msg = ImageMessage("user", prompt, referenceDataURLs...)
	} else {
		msg = TextMessage("user", prompt)
	}

	body, err := json.Marshal(chatRequest{
		Model:     c.imageModel,
		Messages:  []Message{msg},
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("llm image: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("llm image: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range c.headers() {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm image: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm image: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm image: status %d: %s", resp.StatusCode, tailBytes(raw, 500))
	}

	image, err := extractImage(raw)
	if err != nil {
		// Callers persist RawResponse for forensic inspection.
		return &ImageResult{RawResponse: raw}, err
	}
	return &ImageResult{Image: image, RawResponse: raw}, nil
}

// extractImage pulls image bytes out of the model response. The image model
// answers in several shapes: an images[] list on the message, or multimodal
// content parts with either data URLs or b64_json payloads.
func extractImage(raw []byte) ([]byte, error) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing image response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("image model: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("image model: empty choices")
	}
	msg := resp.Choices[0].Message

	for _, img := range msg.Images {
		if data := decodeDataURL(img.ImageURL.URL); data != nil {
			return data, nil
		}
		if img.B64JSON != "" {
			if data, err := base64.StdEncoding.DecodeString(img.B64JSON); err == nil {
				return data, nil
			}
		}
	}

	var parts []struct {
		Type     string `json:"type"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
		Image struct {
			B64JSON string `json:"b64_json"`
		} `json:"image"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(msg.Content, &parts); err == nil {
		for _, part := range parts {
			if data := decodeDataURL(part.ImageURL.URL); data != nil {
				return data, nil
			}
			if part.Image.B64JSON != "" {
				if data, err := base64.StdEncoding.DecodeString(part.Image.B64JSON); err == nil {
					return data, nil
				}
			}
			if data := decodeDataURL(part.URL); data != nil {
				return data, nil
			}
		}
	}

	return nil, fmt.Errorf("image model: no image in response")
}

// decodeDataURL decodes a base64 image data URL, nil when u is not one.
func decodeDataURL(u string) []byte {
	if !strings.HasPrefix(u, "data:image") {
		return nil
	}
	_, payload, found := strings.Cut(u, "base64,")
	if !found {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil
	}
	return data
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.apiKey)
	h.Set("HTTP-Referer", c.referer)
	h.Set("X-Title", c.title)
	return h
}

func tailBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}

// StripCodeFences removes a surrounding markdown code fence from a model
// answer, tolerating a language tag after the opening backticks. Answers
// without fences pass through unchanged.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
