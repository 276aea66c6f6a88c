package inference

import "context"

// RateLimiter is the narrow trait the orchestrator calls through before
// dispatching to a provider, per spec.md §9: acquire(scope_key, amount).
// The concrete backend (token bucket, distributed limiter, or no-op) is
// external to the dispatch engine.
type RateLimiter interface {
	Acquire(ctx context.Context, scopeKey string, amount int) error
}
