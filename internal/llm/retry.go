package llm

import (
	"context"
	"math/rand"
	"time"

	"briefly/internal/core"
)

// RetryingProvider wraps a Provider with bounded retries and jittered
// backoff on any failed call (errors are not classified; every error is
// retried up to maxRetries times), and accumulates per-call token/cost
// metrics the way the teacher's TracedClient accumulated latency and
// token counts around every call — generalized here from external
// tracing to the ResearchJob's own Metrics accounting.
type RetryingProvider struct {
	inner      Provider
	maxRetries int
	backoff    time.Duration
	pricing    Pricing
}

// Pricing converts token counts into an estimated USD cost.
type Pricing struct {
	InputCostPer1MTokens  float64
	OutputCostPer1MTokens float64
}

// NewRetryingProvider wraps inner with retry/backoff and cost accounting.
func NewRetryingProvider(inner Provider, maxRetries int, backoff time.Duration, pricing Pricing) *RetryingProvider {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &RetryingProvider{inner: inner, maxRetries: maxRetries, backoff: backoff, pricing: pricing}
}

// Complete retries any failed call with jittered backoff and returns
// the accumulated Metrics for the (possibly multiple) attempts alongside
// the result.
func (r *RetryingProvider) Complete(ctx context.Context, prompt string) (CompletionResult, core.Metrics, error) {
	var result CompletionResult
	var err error
	var metrics core.Metrics

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return CompletionResult{}, metrics, ctx.Err()
		}
		result, err = r.inner.Complete(ctx, prompt)
		metrics.LLMCallCount++
		if err == nil {
			metrics.InputTokens += result.InputTokens
			metrics.OutputTokens += result.OutputTokens
			metrics.EstimatedCostUSD += r.cost(result.InputTokens, result.OutputTokens)
			return result, metrics, nil
		}
		if attempt < r.maxRetries {
			sleepJittered(ctx, r.backoff)
		}
	}
	return CompletionResult{}, metrics, core.NewJobError(core.KindLLMProviderError, "completion failed after retries", err)
}

// Embed retries any failed call with jittered backoff.
func (r *RetryingProvider) Embed(ctx context.Context, text string) (EmbeddingResult, core.Metrics, error) {
	var result EmbeddingResult
	var err error
	var metrics core.Metrics

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return EmbeddingResult{}, metrics, ctx.Err()
		}
		result, err = r.inner.Embed(ctx, text)
		metrics.LLMCallCount++
		if err == nil {
			metrics.InputTokens += result.InputTokens
			metrics.EstimatedCostUSD += r.cost(result.InputTokens, 0)
			return result, metrics, nil
		}
		if attempt < r.maxRetries {
			sleepJittered(ctx, r.backoff)
		}
	}
	return EmbeddingResult{}, metrics, core.NewJobError(core.KindLLMProviderError, "embedding failed after retries", err)
}

func (r *RetryingProvider) cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*r.pricing.InputCostPer1MTokens +
		float64(outputTokens)/1_000_000*r.pricing.OutputCostPer1MTokens
}

func sleepJittered(ctx context.Context, base time.Duration) {
	jitter := time.Duration(rand.Int63n(int64(base)))
	select {
	case <-time.After(base + jitter):
	case <-ctx.Done():
	}
}
