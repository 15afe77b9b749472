// Package llm wraps the language-model call behind a single text-in,
// text-out interface. The rest of the service treats it as opaque.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Client produces a completion for a flat prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config controls client construction.
type Config struct {
	Mode         string
	GeminiAPIKey string
	GeminiModel  string
	GeminiURL    string
}

// NewClient selects an implementation by mode: "gemini" requires an API key,
// "mock" is deterministic and local, "auto" picks gemini when a key is
// configured and falls back to mock otherwise.
func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
			return NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiURL), nil
		}
		return NewMockClient(), nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, errors.New("gemini API key is required for gemini mode")
		}
		return NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiURL), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}
