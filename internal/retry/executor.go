package retry

import (
	"context"
	"time"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// OnRetryFunc is called before each retry wait.
type OnRetryFunc func(attempt int, err error, delay time.Duration)

// Executor orchestrates retry attempts with backoff and error classification.
//
// Execute is safe for concurrent use. WithOnRetry returns a copy, so the
// receiver is never mutated.
type Executor struct {
	classifier iamconn.ErrorClassifier
	strategy   iamconn.BackoffStrategy
	onRetry    OnRetryFunc
}

// NewExecutor creates a new retry executor.
// Panics if classifier or strategy is nil.
func NewExecutor(classifier iamconn.ErrorClassifier, strategy iamconn.BackoffStrategy) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if strategy == nil {
		panic("strategy cannot be nil")
	}
	return &Executor{classifier: classifier, strategy: strategy}
}

// NewDefaultExecutor returns the executor used by connectors when retry is enabled.
func NewDefaultExecutor() *Executor {
	return NewExecutor(
		NewConnectClassifier(),
		NewExponentialBackoff(iamconn.DefaultRetryMaxAttempts,
			WithInitialDelay(iamconn.DefaultRetryInitialDelay),
			WithMaxDelay(iamconn.DefaultRetryMaxDelay),
		),
	)
}

// WithOnRetry returns a new Executor with the specified retry callback.
func (e *Executor) WithOnRetry(callback OnRetryFunc) *Executor {
	clone := *e
	clone.onRetry = callback
	return &clone
}

// Execute runs operation, retrying transient failures until the strategy's
// attempt budget is spent. It returns nil, the first fatal error, the last
// transient error, or the context error.
func (e *Executor) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	lastErr := operation(ctx)
	if lastErr == nil || !e.classifier.IsTransient(lastErr) {
		return lastErr
	}

	maxAttempts := e.strategy.MaxAttempts()
	for attempt := 0; maxAttempts < 0 || attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay := e.strategy.NextDelay(attempt)
		if e.onRetry != nil {
			e.onRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		lastErr = operation(ctx)
		if lastErr == nil || !e.classifier.IsTransient(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
