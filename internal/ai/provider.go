package ai

import (
	"context"
	"fmt"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates one chat completion.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Config selects the chat-completion endpoint.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// NewProvider returns the configured provider, or nil when no endpoint is
// configured (callers then fall back to heuristic collaborators).
func NewProvider(cfg Config) (Provider, error) {
	if cfg.BaseURL == "" {
		return nil, nil
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ai: model is required when base url is set")
	}
	return NewOpenAIProvider(cfg), nil
}
