/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package llm talks to the text-generation service that drives every
// decision in the game: topic choice, guesses, correctness and analysis.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

var (
	ErrEmptyResponse   = errors.New("llm: empty response")
	ErrUnknownProvider = errors.New("llm: unknown provider")
	ErrMissingAPIKey   = errors.New("llm: api key required")
)

// Request is a single prompt round trip.
type Request struct {
	// Operation labels the call for logs and metrics ("topic", "respond", ...).
	Operation string
	Prompt    string
	// JSON asks the provider for a JSON-only completion where supported.
	JSON bool
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

func Providers() []string {
	return []string{ProviderGemini, ProviderOpenAI, ProviderOllama}
}

func ValidProvider(name string) bool {
	for _, p := range Providers() {
		if p == name {
			return true
		}
	}
	return false
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3.1"
	default:
		return "gemini-2.0-flash"
	}
}

// New builds the configured provider, wrapped with metrics and logging.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Completer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderGemini
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}

	var (
		c   Completer
		err error
	)

	switch cfg.Provider {
	case ProviderGemini:
		c, err = NewGemini(ctx, cfg)
	case ProviderOpenAI:
		c, err = NewOpenAI(cfg)
	case ProviderOllama:
		c, err = NewOllama(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("llm provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model))

	return Instrument(c, cfg.Provider, logger), nil
}
