// Package llm builds on the Anthropic client for catalog classification and
// retrieval query expansion.
package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/config"
	"github.com/sells-group/catalog-enricher/pkg/anthropic"
)

const defaultMaxTokens = 512

// Service issues prompts against one model.
type Service struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates a Service. A zero maxTokens uses 512.
func New(client anthropic.Client, model string, maxTokens int64) (*Service, error) {
	if client == nil {
		return nil, eris.New("llm: client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, eris.New("llm: model is required")
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Service{client: client, model: model, maxTokens: maxTokens}, nil
}

// FromConfig builds a Service from the anthropic section, or returns nil
// when no key is configured.
func FromConfig(cfg config.AnthropicConfig) (*Service, error) {
	if cfg.Key == "" {
		return nil, nil
	}
	return New(anthropic.NewClient(cfg.Key), cfg.Model, cfg.MaxTokens)
}

// Model returns the model ID.
func (s *Service) Model() string { return s.model }

func (s *Service) ask(ctx context.Context, purpose, system, user string, temperature float64) (string, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		System:      anthropic.CachedSystem(system, "1h"),
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temperature,
	})
	if err != nil {
		return "", eris.Wrapf(err, "llm: %s", purpose)
	}
	resp.Usage.LogCost(s.model, purpose)
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.Errorf("llm: %s: empty response", purpose)
	}
	return text, nil
}
