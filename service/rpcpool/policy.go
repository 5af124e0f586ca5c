package rpcpool

import (
	"strings"
	"time"
)

// Classifier decides whether a failed attempt may be retried against another
// endpoint, and whether the failure looks like rate limiting (which scales
// the backoff more aggressively).
type Classifier func(err error) (retryable bool, rateLimited bool)

// RetryPolicy controls how a Client retries failed operations.
// Immutable per client instance.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Classify    Classifier
}

// transientPatterns are error-message fragments that mark a failure as
// retryable for clients that classify explicitly.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"429",
	"403",
	"500",
	"502",
	"503",
	"too many requests",
	"rate limit",
	"network",
}

// rateLimitPatterns are error-message fragments that mark a failure as
// rate limiting specifically.
var rateLimitPatterns = []string{
	"429",
	"too many requests",
	"rate limit",
}

func matchesAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsRateLimited reports whether the error message looks like rate limiting.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return matchesAny(strings.ToLower(err.Error()), rateLimitPatterns)
}

// ClassifyEVM is the EVM-side classifier: only failures matching known
// transient patterns are retried; everything else (malformed requests,
// execution reverts) propagates immediately.
func ClassifyEVM(err error) (bool, bool) {
	if err == nil {
		return false, false
	}
	msg := strings.ToLower(err.Error())
	return matchesAny(msg, transientPatterns), matchesAny(msg, rateLimitPatterns)
}

// ClassifyAll is the Solana-side classifier: every failure is treated as
// retryable. This mirrors the behavior of the public-endpoint Solana clients,
// which accept a wasted attempt on a genuinely fatal error in exchange for
// never giving up early on a flaky endpoint. Kept as a distinct preset from
// ClassifyEVM; the two are not interchangeable.
func ClassifyAll(err error) (bool, bool) {
	if err == nil {
		return false, false
	}
	return true, matchesAny(strings.ToLower(err.Error()), rateLimitPatterns)
}

// DefaultSolanaPolicy returns the default policy for Solana-side clients:
// 3 attempts, 3s base delay, all failures retryable.
func DefaultSolanaPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   3 * time.Second,
		Classify:    ClassifyAll,
	}
}

// DefaultEVMPolicy returns the default policy for EVM-side clients:
// 3 attempts, 3s base delay, explicit transient classification.
func DefaultEVMPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   3 * time.Second,
		Classify:    ClassifyEVM,
	}
}

// FastPolicy returns a degraded variant that switches endpoints and retries
// immediately, with no backoff. Intended for latency-sensitive read paths
// only; must not be used for funds-moving operations.
func FastPolicy(classify Classifier) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   0,
		Classify:    classify,
	}
}
