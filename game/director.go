package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Seednode/manzai/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Operation names passed to the model, used as metric and log labels.
const (
	OpTopic   = "topic"
	OpRespond = "respond"
	OpAnalyze = "analyze"
	OpScript  = "script"
)

// Director asks the language model for every decision in a game. Each call
// is a single attempt: transport errors are returned, unusable output is
// replaced by a fixed default.
type Director struct {
	llm    llm.Completer
	logger *zap.Logger
}

func NewDirector(c llm.Completer, logger *zap.Logger) *Director {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Director{
		llm:    c,
		logger: logger,
	}
}

// complete returns ok=false when the model answered with nothing.
func (d *Director) complete(ctx context.Context, op, prompt string, asJSON bool) (string, bool, error) {
	text, err := d.llm.Complete(ctx, llm.Request{
		Operation: op,
		Prompt:    prompt,
		JSON:      asJSON,
	})
	if errors.Is(err, llm.ErrEmptyResponse) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	return text, true, nil
}

func (d *Director) fallback(op string, reason error) {
	llm.RecordFallback(op)
	d.logger.Warn("unusable completion, using default",
		zap.String("operation", op),
		zap.Error(reason))
}

// Topic picks a word for level d.
func (d *Director) Topic(ctx context.Context, level Difficulty) (Topic, error) {
	text, ok, err := d.complete(ctx, OpTopic, topicPrompt(level), true)
	if err != nil {
		return Topic{}, err
	}
	if !ok {
		d.fallback(OpTopic, llm.ErrEmptyResponse)
		return fallbackTopic(level), nil
	}

	var t Topic
	if err := llm.DecodeJSON(text, &t); err != nil {
		d.fallback(OpTopic, err)
		return fallbackTopic(level), nil
	}

	t.Topic = strings.TrimSpace(t.Topic)
	t.Category = strings.TrimSpace(t.Category)
	if t.Topic == "" || t.Category == "" {
		d.fallback(OpTopic, errors.New("blank topic or category"))
		return fallbackTopic(level), nil
	}

	return t, nil
}

// Respond has the bot react to the hint in t. Correctness is whatever the
// model says it is.
func (d *Director) Respond(ctx context.Context, t Turn) (Reply, error) {
	prompt := respondPrompt(t.Topic.Topic, HistoryFrom(t.Prior), t.Hint, t.Number)

	text, ok, err := d.complete(ctx, OpRespond, prompt, true)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		d.fallback(OpRespond, llm.ErrEmptyResponse)
		return fallbackReply(), nil
	}

	var r Reply
	if err := llm.DecodeJSON(text, &r); err != nil {
		d.fallback(OpRespond, err)
		return fallbackReply(), nil
	}

	r.Guess = strings.TrimSpace(r.Guess)
	r.ResponseV1 = strings.TrimSpace(r.ResponseV1)
	r.ResponseV2 = strings.TrimSpace(r.ResponseV2)

	if r.ResponseV1 == "" {
		d.fallback(OpRespond, errors.New("blank responseV1"))
		return fallbackReply(), nil
	}

	def := fallbackReply()
	if r.Guess == "" {
		r.Guess = def.Guess
	}
	if r.ResponseV2 == "" && !r.IsCorrect {
		r.ResponseV2 = def.ResponseV2
	}

	return r, nil
}

// Analyze classifies each of the player's hints.
func (d *Director) Analyze(ctx context.Context, topic string, lines []Utterance) (Analysis, error) {
	hints := HistoryFrom(lines).Hints()

	text, ok, err := d.complete(ctx, OpAnalyze, analyzePrompt(topic, hints), true)
	if err != nil {
		return Analysis{}, err
	}
	if !ok {
		d.fallback(OpAnalyze, llm.ErrEmptyResponse)
		return fallbackAnalysis(hints), nil
	}

	var a Analysis
	if err := llm.DecodeJSON(text, &a); err != nil {
		d.fallback(OpAnalyze, err)
		return fallbackAnalysis(hints), nil
	}

	a.normalize(hints)

	if a.Summary == "" && len(a.Entries) == 0 {
		d.fallback(OpAnalyze, errors.New("empty analysis"))
		return fallbackAnalysis(hints), nil
	}

	return a, nil
}

// Script writes the finished comedy script for the conversation.
func (d *Director) Script(ctx context.Context, topic string, lines []Utterance) (string, error) {
	h := HistoryFrom(lines)

	text, ok, err := d.complete(ctx, OpScript, scriptPrompt(topic, h), false)
	if err != nil {
		return "", err
	}
	if !ok {
		d.fallback(OpScript, llm.ErrEmptyResponse)
		return fallbackScript(topic, h), nil
	}

	return text, nil
}

type Summary struct {
	Analysis Analysis `json:"analysis"`
	Script   string   `json:"script"`
}

// Summarize runs Analyze and Script concurrently and joins them. It never
// fails: each half falls back on its own.
func (d *Director) Summarize(ctx context.Context, topic string, lines []Utterance) Summary {
	var (
		s Summary
		g errgroup.Group
	)

	g.Go(func() error {
		a, err := d.Analyze(ctx, topic, lines)
		if err != nil {
			d.fallback(OpAnalyze, err)
			a = fallbackAnalysis(HistoryFrom(lines).Hints())
		}
		s.Analysis = a
		return nil
	})

	g.Go(func() error {
		script, err := d.Script(ctx, topic, lines)
		if err != nil {
			d.fallback(OpScript, err)
			script = fallbackScript(topic, HistoryFrom(lines))
		}
		s.Script = script
		return nil
	})

	_ = g.Wait()

	return s
}
