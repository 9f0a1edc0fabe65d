package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-agent/internal/observability"
)

// FallbackClient wraps a primary client with a fallback provider.
// If the primary fails, the same request is retried on the fallback.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   zerolog.Logger
}

// NewFallbackClient accepts a nil fallback, in which case primary errors are
// returned as is.
func NewFallbackClient(primary, fallback Client, logger zerolog.Logger) *FallbackClient {
	return &FallbackClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn().Err(err).
		Bool("fallback_available", c.fallback != nil).
		Msg("primary LLM failed, attempting fallback")

	if c.fallback == nil || ctx.Err() != nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error().
			Str("primary_error", err.Error()).
			Str("fallback_error", fallbackErr.Error()).
			Msg("fallback LLM also failed")
		return Response{}, fallbackErr
	}

	c.logger.Info().Msg("fallback LLM succeeded after primary failure")
	return fallbackResp, nil
}

// InstrumentedClient records request counts and latency for the wrapped client.
type InstrumentedClient struct {
	next    Client
	metrics *observability.Metrics
}

func NewInstrumentedClient(next Client, metrics *observability.Metrics) *InstrumentedClient {
	return &InstrumentedClient{next: next, metrics: metrics}
}

func (c *InstrumentedClient) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := c.next.Complete(ctx, req)

	status := "ok"
	switch {
	case ctx.Err() != nil:
		status = "timeout"
	case err != nil:
		status = "error"
	}
	c.metrics.ObserveLLM(status, time.Since(start).Seconds())
	return resp, err
}
