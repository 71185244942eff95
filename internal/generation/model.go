// Package generation is the client for the remote text-generation service
// that turns a validated intake into a structured report.
package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Request is a single JSON-producing generation call.
type Request struct {
	System string
	Prompt string
	// Images are base64-encoded JPEG/PNG photos.
	Images []string
}

// Model is a provider backend that answers a Request with raw JSON text.
type Model interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
	Name() string
	Close() error
}

// Provider names a Model backend.
type Provider string

const (
	ProviderGemini     Provider = "gemini"
	ProviderOpenRouter Provider = "openrouter"
)

// NewModel builds the backend for provider.
func NewModel(ctx context.Context, provider Provider, apiKey, model string) (Model, error) {
	switch provider {
	case ProviderGemini, "":
		return NewGeminiModel(ctx, apiKey, model)
	case ProviderOpenRouter:
		if apiKey == "" {
			return nil, fmt.Errorf("API key is required")
		}
		return NewOpenRouterModel(apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// CleanJSONBlock removes markdown code block wrappers from JSON responses.
// Models often wrap JSON in ```json ... ``` blocks even when instructed not to.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	return text
}

// imageMIME sniffs the MIME subtype of a base64 image, defaulting to jpeg.
func imageMIME(b64 string) (subtype string, data []byte, err error) {
	data, err = base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", nil, err
	}
	if len(data) >= 8 && string(data[1:4]) == "PNG" {
		return "png", data, nil
	}
	return "jpeg", data, nil
}
