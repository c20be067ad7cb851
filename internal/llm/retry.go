package llm

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy bounds retries of failed invocations: at most MaxAttempts
// total attempts with a fixed Delay between them.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// OnRetry, when set, is called once before each retry attempt.
	OnRetry func()
}

// DefaultRetryPolicy retries once after a short fixed delay.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 2, Delay: time.Second}

// retryClient decorates a Client with a bounded retry policy.
type retryClient struct {
	inner  Client
	policy RetryPolicy
	logger *slog.Logger
}

// WithRetry wraps client so that failed invocations are retried
// according to policy. Context cancellation aborts the delay.
func WithRetry(client Client, policy RetryPolicy, logger *slog.Logger) Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryClient{inner: client, policy: policy, logger: logger}
}

func (c *retryClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		resp, err := c.inner.Invoke(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt < c.policy.MaxAttempts {
			c.logger.Warn("inference call failed, retrying",
				"model", req.Model, "attempt", attempt, "error", err)
			if c.policy.OnRetry != nil {
				c.policy.OnRetry()
			}
			select {
			case <-time.After(c.policy.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}
