package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
)

// GuardConfig configures a GuardedProvider.
type GuardConfig struct {
	// Name identifies the wrapped provider in logs.
	Name string
	// MaxConcurrent caps in-flight calls to the provider (default: 8).
	MaxConcurrent int
	// BreakerFailures is the number of consecutive failures that opens the
	// circuit (default: 3).
	BreakerFailures int
	// BreakerTimeout is how long the circuit stays open before a trial call
	// is let through (default: 60s).
	BreakerTimeout time.Duration
}

func (c GuardConfig) withDefaults() GuardConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = 3
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 60 * time.Second
	}
	return c
}

// GuardedProvider wraps a Provider with a concurrency limit and a circuit
// breaker, so a dead provider fails fast and the router moves on to the next.
type GuardedProvider struct {
	provider Provider
	name     string
	breaker  circuitbreaker.CircuitBreaker[CompletionResponse]
	limiter  bulkhead.Bulkhead[CompletionResponse]
}

// NewGuardedProvider wraps provider according to cfg.
func NewGuardedProvider(provider Provider, cfg GuardConfig) *GuardedProvider {
	cfg = cfg.withDefaults()
	g := &GuardedProvider{
		provider: provider,
		name:     cfg.Name,
	}

	failures := cfg.BreakerFailures
	g.breaker = circuitbreaker.New[CompletionResponse](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= failures
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			slog.Warn("AI provider circuit state change",
				"provider", g.name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	g.limiter = bulkhead.New[CompletionResponse](bulkhead.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxQueue:      cfg.MaxConcurrent * 4,
		QueueTimeout:  30 * time.Second,
	})

	return g
}

func (g *GuardedProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return g.breaker.Execute(ctx, func(ctx context.Context) (CompletionResponse, error) {
		return g.limiter.Execute(ctx, func(ctx context.Context) (CompletionResponse, error) {
			return g.provider.Complete(ctx, req)
		})
	})
}

func (g *GuardedProvider) Models() []ModelInfo {
	return g.provider.Models()
}

// HealthCheck bypasses the breaker so readiness reflects the provider itself.
func (g *GuardedProvider) HealthCheck(ctx context.Context) error {
	return g.provider.HealthCheck(ctx)
}
