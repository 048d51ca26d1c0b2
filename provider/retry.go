package provider

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/becomeliminal/arcana-go/core"
)

// RetryConfig tunes the shared retry decorator. The same policy wraps every
// adapter so retry behavior never varies per provider.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	// Default: 3.
	MaxAttempts int

	// BaseDelay is the first backoff interval; it doubles per attempt.
	// Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff interval. Default: 8s.
	MaxDelay time.Duration

	// CallTimeout bounds each individual attempt. Default: 30s.
	CallTimeout time.Duration

	// RateLimit throttles outbound calls across attempts; zero disables it.
	RateLimit rate.Limit

	// Burst is the limiter burst size when RateLimit is set. Default: 1.
	Burst int
}

// DefaultRetryConfig returns the policy applied when no config is given.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		CallTimeout: 30 * time.Second,
	}
}

func (c *RetryConfig) withDefaults() *RetryConfig {
	out := *DefaultRetryConfig()
	if c == nil {
		return &out
	}
	if c.MaxAttempts > 0 {
		out.MaxAttempts = c.MaxAttempts
	}
	if c.BaseDelay > 0 {
		out.BaseDelay = c.BaseDelay
	}
	if c.MaxDelay > 0 {
		out.MaxDelay = c.MaxDelay
	}
	if c.CallTimeout > 0 {
		out.CallTimeout = c.CallTimeout
	}
	out.RateLimit = c.RateLimit
	out.Burst = c.Burst
	return &out
}

func (c *RetryConfig) limiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	burst := c.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(c.RateLimit, burst)
}

// retry runs fn under the configured policy. Only retryable provider error
// kinds (timeout, connection, rate limit) are retried; everything else fails
// on the first attempt. A rate-limited error's RetryAfter hint is honored as
// a minimum wait before the next attempt.
func retry[T any](ctx context.Context, cfg *RetryConfig, limiter *rate.Limiter, fn func(context.Context) (T, error)) (T, error) {
	attempt := 0

	op := func() (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return zero, backoff.Permanent(err)
			}
		}
		attempt++

		cctx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		v, err := fn(cctx)
		cancel()
		if err == nil {
			return v, nil
		}

		// A tripped per-attempt deadline counts as a timeout even when the
		// adapter returned the raw context error.
		if errors.Is(err, context.DeadlineExceeded) && core.KindOf(err) == core.KindUnknown && ctx.Err() == nil {
			err = core.NewProviderError("retry", core.KindTimeout, err)
		}

		if !core.Retryable(err) || attempt >= cfg.MaxAttempts {
			return zero, backoff.Permanent(err)
		}

		var pe *core.ProviderError
		if errors.As(err, &pe) && pe.RetryAfter > 0 {
			select {
			case <-time.After(pe.RetryAfter):
			case <-ctx.Done():
				return zero, backoff.Permanent(ctx.Err())
			}
		}
		return zero, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = 2

	return backoff.RetryWithData(op, backoff.WithContext(b, ctx))
}

// RetryTextGenerator decorates a TextGenerator with the shared retry policy.
type RetryTextGenerator struct {
	inner   TextGenerator
	cfg     *RetryConfig
	limiter *rate.Limiter
}

// NewRetryTextGenerator wraps inner; nil cfg uses DefaultRetryConfig.
func NewRetryTextGenerator(inner TextGenerator, cfg *RetryConfig) *RetryTextGenerator {
	cfg = cfg.withDefaults()
	return &RetryTextGenerator{inner: inner, cfg: cfg, limiter: cfg.limiter()}
}

// Generate implements TextGenerator.
func (g *RetryTextGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return retry(ctx, g.cfg, g.limiter, func(ctx context.Context) (string, error) {
		return g.inner.Generate(ctx, prompt, opts)
	})
}

// RetryEmbeddingGenerator decorates an EmbeddingGenerator with the shared
// retry policy. Batch calls are retried as a whole only when the call itself
// fails; per-item failures inside a successful call pass through untouched.
type RetryEmbeddingGenerator struct {
	inner   EmbeddingGenerator
	cfg     *RetryConfig
	limiter *rate.Limiter
}

// NewRetryEmbeddingGenerator wraps inner; nil cfg uses DefaultRetryConfig.
func NewRetryEmbeddingGenerator(inner EmbeddingGenerator, cfg *RetryConfig) *RetryEmbeddingGenerator {
	cfg = cfg.withDefaults()
	return &RetryEmbeddingGenerator{inner: inner, cfg: cfg, limiter: cfg.limiter()}
}

// Embed implements EmbeddingGenerator.
func (g *RetryEmbeddingGenerator) Embed(ctx context.Context, text string) (core.Embedding, error) {
	return retry(ctx, g.cfg, g.limiter, func(ctx context.Context) (core.Embedding, error) {
		return g.inner.Embed(ctx, text)
	})
}

// EmbedBatch implements EmbeddingGenerator.
func (g *RetryEmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) ([]BatchResult, error) {
	return retry(ctx, g.cfg, g.limiter, func(ctx context.Context) ([]BatchResult, error) {
		return g.inner.EmbedBatch(ctx, texts)
	})
}

// Dimensions implements EmbeddingGenerator.
func (g *RetryEmbeddingGenerator) Dimensions() int {
	return g.inner.Dimensions()
}
