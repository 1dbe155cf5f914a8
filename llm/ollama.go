/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama completes prompts with a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

func NewOllama(cfg Config) (*Ollama, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	// The native API lives beside the OpenAI-compatible /v1 prefix.
	base = strings.TrimSuffix(strings.TrimSuffix(base, "/"), "/v1")

	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("ollama: parse base url %q: %w", base, err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel(ProviderOllama)
	}

	return &Ollama{
		client: api.NewClient(parsed, &http.Client{Timeout: cfg.Timeout}),
		model:  model,
	}, nil
}

func (o *Ollama) Complete(ctx context.Context, req Request) (string, error) {
	stream := false

	chat := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{Role: "user", Content: req.Prompt},
		},
		Stream: &stream,
	}
	if req.JSON {
		chat.Format = json.RawMessage(`"json"`)
	}

	var b strings.Builder
	err := o.client.Chat(ctx, chat, func(r api.ChatResponse) error {
		b.WriteString(r.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama: generate %s: %w", req.Operation, err)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}
