package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	requestTimeout    = 120 * time.Second
	maxRetries        = 3
	initialBackoff    = 500 * time.Millisecond

	// DefaultOpenRouterModel is used when no model name is configured.
	DefaultOpenRouterModel = "google/gemini-2.5-flash"
)

// OpenRouterModel implements Model against the OpenRouter chat completions API.
type OpenRouterModel struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	backoff    time.Duration
}

// NewOpenRouterModel creates an OpenRouter-backed Model.
func NewOpenRouterModel(apiKey, model string) *OpenRouterModel {
	if model == "" {
		model = DefaultOpenRouterModel
	}
	return &OpenRouterModel{
		apiKey:     apiKey,
		baseURL:    openRouterBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: requestTimeout},
		backoff:    initialBackoff,
	}
}

// NewOpenRouterModelWithBaseURL points the model at a custom base URL (for testing).
func NewOpenRouterModelWithBaseURL(apiKey, model, baseURL string) *OpenRouterModel {
	m := NewOpenRouterModel(apiKey, model)
	m.baseURL = strings.TrimRight(baseURL, "/")
	return m
}

func (m *OpenRouterModel) Name() string { return m.model }

func (m *OpenRouterModel) Close() error { return nil }

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// GenerateJSON sends a non-streaming chat completion and returns the content.
// HTTP 429 responses are retried with exponential backoff.
func (m *OpenRouterModel) GenerateJSON(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(m.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		text, err := m.doChat(ctx, body)
		if err == nil {
			return text, nil
		}

		var rl *rateLimitError
		if !errors.As(err, &rl) {
			return "", err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(m.backoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (m *OpenRouterModel) buildRequest(req Request) chatRequest {
	var user any = req.Prompt
	if len(req.Images) > 0 {
		parts := []chatContent{{Type: "text", Text: req.Prompt}}
		for _, img := range req.Images {
			subtype := "jpeg"
			if s, _, err := imageMIME(img); err == nil {
				subtype = s
			}
			parts = append(parts, chatContent{
				Type:     "image_url",
				ImageURL: &chatImageURL{URL: "data:image/" + subtype + ";base64," + img},
			})
		}
		user = parts
	}

	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})

	return chatRequest{
		Model:          m.model,
		Messages:       msgs,
		Temperature:    0.2,
		ResponseFormat: map[string]any{"type": "json_object"},
	}
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func (m *OpenRouterModel) doChat(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	m.setHeaders(httpReq)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{status: resp.StatusCode}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("provider error %d: %s", out.Error.Code, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return CleanJSONBlock(out.Choices[0].Message.Content), nil
}

func (m *OpenRouterModel) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/kalambet/claritydesk")
	req.Header.Set("X-Title", "claritydesk")
}
