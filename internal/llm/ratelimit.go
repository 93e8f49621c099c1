package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Epistemic-Technology/study-rag/internal/logger"
)

const (
	// OpenAI rate limit is 2M tokens/min for gpt-5-mini
	// We set our limit to 1.8M tokens/min (30k tokens/sec) to leave safety margin
	tokensPerSecond = 30000
	// Burst allows short bursts above the sustained rate
	burstTokens = 60000

	// Worker pool size for parallel embedding batches
	defaultMaxWorkers = 4

	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 32 * time.Second
)

var (
	// Global rate limiter for OpenAI API calls
	// This ensures all concurrent operations share the same rate limit
	openAIRateLimiter = rate.NewLimiter(rate.Limit(tokensPerSecond), burstTokens)
)

// EstimateTokens is a rough token count for rate limiting (about 4 chars per token).
func EstimateTokens(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += len(t)/4 + 1
	}
	return n
}

// RateLimitedCall waits for rate limiter approval, then calls fn. Only rate
// limit (429) errors are retried, at most maxRetries times with exponential
// backoff; maxRetries of 0 means a single attempt.
func RateLimitedCall[T any](ctx context.Context, estimatedTokens int, maxRetries int, log logger.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	// WaitN fails outright for requests larger than the burst
	estimatedTokens = max(1, min(estimatedTokens, burstTokens))
	if err := openAIRateLimiter.WaitN(ctx, estimatedTokens); err != nil {
		return zero, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(baseRetryDelay) * math.Pow(2, float64(attempt-1)))
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}

			log.Info("Retry attempt %d/%d after %v delay", attempt, maxRetries, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info("Retry succeeded on attempt %d", attempt)
			}
			return result, nil
		}

		lastErr = err

		if !isRateLimitError(err) || maxRetries == 0 {
			return zero, err
		}

		log.Warn("Rate limit error (429) on attempt %d/%d: %v", attempt+1, maxRetries+1, err)
	}

	return zero, fmt.Errorf("max retries (%d) exceeded, last error: %w", maxRetries, lastErr)
}

// isRateLimitError checks if an error is a 429 rate limit error from OpenAI
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, marker := range []string{"429", "rate limit", "rate_limit_exceeded", "Too Many Requests"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// WorkerPool bounds the number of concurrent upstream calls
type WorkerPool struct {
	maxWorkers int
	semaphore  chan struct{}
}

// NewWorkerPool creates a new worker pool with the specified maximum workers
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Acquire acquires a worker slot, blocking if all workers are busy
func (wp *WorkerPool) Acquire(ctx context.Context) error {
	select {
	case wp.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases a worker slot, allowing another worker to proceed
func (wp *WorkerPool) Release() {
	<-wp.semaphore
}

// ParallelProcess runs processFn over items with at most maxWorkers in
// flight and returns results in input order. The first error wins.
func ParallelProcess[T any, R any](
	ctx context.Context,
	items []T,
	maxWorkers int,
	processFn func(context.Context, int, T) (R, error),
) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}

	wp := NewWorkerPool(maxWorkers)
	results := make([]R, len(items))

	type result struct {
		index int
		value R
		err   error
	}
	resultChan := make(chan result, len(items))

	launched := 0
	var spawnErr error
	for i, item := range items {
		if err := wp.Acquire(ctx); err != nil {
			spawnErr = err
			break
		}
		launched++

		go func(idx int, itm T) {
			defer wp.Release()

			select {
			case <-ctx.Done():
				var zero R
				resultChan <- result{index: idx, value: zero, err: ctx.Err()}
				return
			default:
			}

			val, err := processFn(ctx, idx, itm)
			resultChan <- result{index: idx, value: val, err: err}
		}(i, item)
	}

	firstError := spawnErr
	for range launched {
		res := <-resultChan
		if res.err != nil && firstError == nil {
			firstError = res.err
		}
		results[res.index] = res.value
	}

	if firstError != nil {
		return nil, firstError
	}

	return results, nil
}
