package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/ports/adapter"
	"cv-evaluation-service/internal/infra/metrics"
)

var _ adapter.LLMClient = (*RetryClient)(nil)

// RetryClient decorates an LLMClient with bounded retries on transient
// provider failures. Backoff is exponential (base delay, multiplier 2) with
// full jitter in [0, base) on top; the jittered sleep never exceeds
// maxDelay. Non-transient failures return immediately; an exhausted budget
// returns *domain.LLMExhaustedError.
//
// The wrapper holds no mutable state beyond configuration, so one instance
// serves all stage executors concurrently.
type RetryClient struct {
	inner       adapter.LLMClient
	provider    string
	model       string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	log         *zerolog.Logger
}

func NewRetryClient(inner adapter.LLMClient, provider, model string, maxAttempts int, baseDelay, maxDelay time.Duration, log *zerolog.Logger) *RetryClient {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &RetryClient{
		inner:       inner,
		provider:    provider,
		model:       model,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		sleep:       sleepCtx,
		log:         log,
	}
}

func (c *RetryClient) Complete(ctx context.Context, prompt adapter.Prompt, opts adapter.CompleteOptions) (string, error) {
	var lastErr error
	delay := c.baseDelay

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		callStart := time.Now()
		out, err := c.inner.Complete(ctx, prompt, opts)
		metrics.ObserveLLMCall(c.provider, c.model, int(time.Since(callStart).Milliseconds()), err == nil)
		if err == nil {
			metrics.IncLLMAttempt(c.provider, "ok")
			return out, nil
		}

		var provErr *adapter.ProviderError
		if !errors.As(err, &provErr) || !provErr.Transient {
			metrics.IncLLMAttempt(c.provider, "permanent")
			return "", err
		}
		metrics.IncLLMAttempt(c.provider, "transient")
		lastErr = err

		if attempt == c.maxAttempts {
			break
		}

		wait := delay + time.Duration(rand.Int63n(int64(c.baseDelay)))
		if wait > c.maxDelay {
			wait = c.maxDelay
		}
		c.log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("transient provider failure, backing off")
		if err := c.sleep(ctx, wait); err != nil {
			// Job deadline or cancellation wins over the backoff sleep.
			return "", err
		}
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}

	return "", &domain.LLMExhaustedError{Attempts: c.maxAttempts, LastErr: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
