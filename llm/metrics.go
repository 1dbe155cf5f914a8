/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package llm

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manzai_llm_requests_total",
			Help: "Total number of requests to the text-generation service.",
		},
		[]string{"provider", "operation", "status"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "manzai_llm_request_duration_seconds",
			Help:    "Histogram of text-generation request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)
	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manzai_llm_fallbacks_total",
			Help: "Completions that could not be parsed and were replaced by a fixed default.",
		},
		[]string{"operation"},
	)
)

// RecordFallback counts an unusable completion for operation.
func RecordFallback(operation string) {
	fallbacksTotal.WithLabelValues(operation).Inc()
}

type instrumented struct {
	next     Completer
	provider string
	logger   *zap.Logger
}

// Instrument records request counts and durations for every call to next.
func Instrument(next Completer, provider string, logger *zap.Logger) Completer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &instrumented{
		next:     next,
		provider: provider,
		logger:   logger,
	}
}

func (i *instrumented) Complete(ctx context.Context, req Request) (string, error) {
	startTime := time.Now()

	text, err := i.next.Complete(ctx, req)

	duration := time.Since(startTime)
	requestDuration.WithLabelValues(i.provider, req.Operation).Observe(duration.Seconds())

	status := "success"
	switch {
	case errors.Is(err, ErrEmptyResponse):
		status = "empty"
	case err != nil:
		status = "error"
	}
	requestsTotal.WithLabelValues(i.provider, req.Operation, status).Inc()

	if err != nil {
		i.logger.Warn("llm request failed",
			zap.String("provider", i.provider),
			zap.String("operation", req.Operation),
			zap.Duration("duration", duration),
			zap.Error(err))

		return "", err
	}

	i.logger.Debug("llm request completed",
		zap.String("provider", i.provider),
		zap.String("operation", req.Operation),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Int("response_len", len(text)),
		zap.Duration("duration", duration))

	return text, nil
}
