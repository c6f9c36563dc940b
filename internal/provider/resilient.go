package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"

	"geminichat/internal/metrics"
	"geminichat/internal/shared"
)

type ResilientOptions struct {
	Attempts       uint          // total attempts, including the first
	AttemptTimeout time.Duration // deadline for a single provider call
	Backoff        time.Duration // initial delay between attempts, doubled each retry
	MaxFailures    uint32        // consecutive failures before the breaker opens
	OpenFor        time.Duration // how long the breaker stays open
}

// Resilient bounds every provider call with a timeout, retries failed attempts with
// exponential backoff and fails fast through a circuit breaker while the provider is down.
type Resilient struct {
	inner Provider
	opts  ResilientOptions
	cb    *gobreaker.CircuitBreaker
	log   *slog.Logger
}

func NewResilient(inner Provider, opts ResilientOptions, log *slog.Logger) *Resilient {
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 30 * time.Second
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("provider", inner.Name())

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Timeout:     opts.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("provider_breaker_state_changed", "from", from.String(), "to", to.String())
		},
	})

	return &Resilient{inner: inner, opts: opts, cb: cb, log: log}
}

func (r *Resilient) Name() string { return r.inner.Name() }

func (r *Resilient) Generate(ctx context.Context, prompt Prompt) (string, error) {
	var reply string
	attempt := 0

	err := retry.Do(
		func() error {
			attempt++
			text, err := r.attempt(ctx, prompt)
			if err != nil {
				return err
			}
			reply = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(r.opts.Attempts),
		retry.Delay(r.opts.Backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.log.Warn("provider_attempt_failed", "attempt", n+1, "max_attempts", r.opts.Attempts, "error", err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s failed after %d attempts: %w", shared.ErrProvider, r.inner.Name(), attempt, err)
	}
	return reply, nil
}

func (r *Resilient) attempt(ctx context.Context, prompt Prompt) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.opts.AttemptTimeout)
	defer cancel()

	start := time.Now()
	out, err := r.cb.Execute(func() (any, error) {
		text, err := r.inner.Generate(attemptCtx, prompt)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyReply
		}
		return text, nil
	})

	result := "ok"
	if err != nil {
		result = "error"
		if attemptCtx.Err() == context.DeadlineExceeded {
			result = "timeout"
		}
	}
	metrics.ProviderLatency.WithLabelValues(r.inner.Name(), result).Observe(time.Since(start).Seconds())

	if err != nil {
		return "", err
	}
	return out.(string), nil
}
