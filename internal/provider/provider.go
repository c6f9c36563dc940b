package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"geminichat/internal/config"
	"geminichat/internal/shared"
)

// ErrEmptyReply marks a provider answer with no usable text. It counts as a failed attempt.
var ErrEmptyReply = errors.New("provider returned an empty reply")

// Turn is one earlier message of the conversation.
type Turn struct {
	Role    shared.Role
	Content string
}

// Prompt is the conversation context plus the message to answer.
type Prompt struct {
	History []Turn
	Message string
}

// Provider turns a prompt into reply text.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// New builds the configured provider wrapped with timeout, retry and circuit breaking.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (Provider, error) {
	var (
		inner Provider
		err   error
	)
	switch cfg.AIProvider {
	case "gemini":
		inner, err = NewGemini(ctx, cfg.AIAPIKey, cfg.AIModel)
	case "openai":
		inner = NewOpenAI(cfg.AIAPIKey, cfg.AIModel, cfg.AIBaseURL)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}
	if err != nil {
		return nil, err
	}

	return NewResilient(inner, ResilientOptions{
		Attempts:       uint(cfg.GenerationMaxAttempts),
		AttemptTimeout: cfg.ProviderTimeout,
		Backoff:        cfg.GenerationBackoff,
	}, log), nil
}
