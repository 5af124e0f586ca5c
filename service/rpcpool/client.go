package rpcpool

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/veilcash/veil/service/metrics"
)

// Operation is a caller-supplied function executed against a single endpoint.
// The client picks the endpoint; the operation does the network I/O and
// captures any result it needs through its closure.
type Operation func(ctx context.Context, endpoint string) error

// Client executes operations against a pool of unreliable endpoints,
// rotating across previously-untried endpoints on failure.
//
// One Client per logical network; instances are long-lived and safe for
// concurrent use. Attempts within a single Do call are strictly sequential,
// never speculative.
type Client struct {
	pool    *Pool
	policy  RetryPolicy
	network string // label for logs/metrics (e.g. "solana", "arbitrum")
	metrics *metrics.Metrics
	logger  *slog.Logger

	// sleep is replaced in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a resilient client over the given pool. The policy's
// MaxAttempts must be at least 1 and a classifier must be set.
func New(pool *Pool, policy RetryPolicy, network string, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if pool == nil || pool.Size() == 0 {
		return nil, ErrInvalidConfiguration
	}
	if policy.MaxAttempts < 1 || policy.Classify == nil {
		return nil, ErrInvalidConfiguration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		pool:    pool,
		policy:  policy,
		network: network,
		metrics: m,
		logger:  logger,
		sleep:   sleepCtx,
	}, nil
}

// Network returns the network label this client was created with.
func (c *Client) Network() string {
	return c.network
}

// Do runs op against a randomly chosen endpoint, retrying against
// previously-untried endpoints per the client's policy. After exhausting
// all attempts, the last failure is surfaced wrapped in *ExhaustedError.
// Non-retryable failures (per the policy's classifier) propagate
// immediately without consuming a backoff delay.
func (c *Client) Do(ctx context.Context, op Operation) error {
	tried := make(map[int]struct{}, c.pool.Size())

	var lastErr error
	var lastEndpoint string

	for attempt := range c.policy.MaxAttempts {
		idx := c.pick(tried)
		tried[idx] = struct{}{}
		endpoint := c.pool.urls[idx]
		lastEndpoint = endpoint

		start := time.Now()
		err := op(ctx, endpoint)
		duration := time.Since(start).Seconds()

		if err == nil {
			if c.metrics != nil {
				c.metrics.RecordRPCAttempt(c.network, "success", duration)
			}
			return nil
		}
		lastErr = err

		if c.metrics != nil {
			c.metrics.RecordRPCAttempt(c.network, "error", duration)
		}

		retryable, rateLimited := c.policy.Classify(err)
		if !retryable {
			c.logger.DebugContext(ctx, "non-retryable rpc failure",
				"network", c.network,
				"endpoint", endpoint,
				"error", err,
			)
			return err
		}

		if rateLimited && c.metrics != nil {
			c.metrics.RecordRateLimitHit(endpoint)
		}

		if attempt == c.policy.MaxAttempts-1 {
			break
		}

		delay := c.backoff(attempt, rateLimited)
		reason := "transient"
		if rateLimited {
			reason = "rate_limit"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCRetry(c.network, reason)
		}
		c.logger.WarnContext(ctx, "rpc attempt failed, rotating endpoint",
			"network", c.network,
			"endpoint", endpoint,
			"attempt", attempt+1,
			"reason", reason,
			"backoff", delay,
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	if c.metrics != nil {
		c.metrics.RecordRPCExhausted(c.network)
	}
	return &ExhaustedError{
		Attempts: c.policy.MaxAttempts,
		Endpoint: lastEndpoint,
		LastErr:  lastErr,
	}
}

// pick selects a uniformly random endpoint not yet tried in this call.
// If every endpoint has been tried it falls back to any random endpoint.
func (c *Client) pick(tried map[int]struct{}) int {
	untried := make([]int, 0, c.pool.Size())
	for i := range c.pool.urls {
		if _, ok := tried[i]; !ok {
			untried = append(untried, i)
		}
	}
	if len(untried) == 0 {
		return rand.IntN(c.pool.Size())
	}
	return untried[rand.IntN(len(untried))]
}

// backoff computes the delay before the next attempt:
// baseDelay x factor^attempt + uniform jitter up to 1s, where factor is 3
// for rate-limit failures and 2 otherwise.
func (c *Client) backoff(attempt int, rateLimited bool) time.Duration {
	if c.policy.BaseDelay <= 0 {
		return 0
	}
	factor := 2.0
	if rateLimited {
		factor = 3.0
	}
	delay := time.Duration(float64(c.policy.BaseDelay) * math.Pow(factor, float64(attempt)))
	jitter := time.Duration(rand.Int64N(int64(time.Second)))
	return delay + jitter
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
