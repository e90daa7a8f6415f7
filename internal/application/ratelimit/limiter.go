package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/authbridge/verification-api/internal/domain"
)

// Key namespaces. A request is admitted only when both its API-key counter
// and its source-IP counter are under their limits.
const (
	NamespaceKey = "key"
	NamespaceIP  = "ip"
)

// CounterStore is an atomic shared counter with TTL expiry. Correctness
// across stateless workers depends on the increment being atomic in the
// store, not in process memory.
type CounterStore interface {
	Increment(ctx context.Context, key string, ttl time.Time) (int64, error)
}

// Result is the outcome of one fixed-window check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, rounded up.
func (r *Result) RetryAfter(now time.Time) int {
	secs := int((r.ResetAt.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter enforces fixed (not sliding) windows over a shared counter. The
// counter key embeds the window start, so all workers agree on the boundary
// and an elapsed window always restarts at count 1 under a fresh key.
type Limiter struct {
	store CounterStore
	nowFn func() time.Time
}

func NewLimiter(store CounterStore) *Limiter {
	return &Limiter{store: store, nowFn: time.Now}
}

// Check counts this request against the key's current window and reports
// whether it is admitted.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := l.nowFn()
	windowStart := now.UnixMilli() - now.UnixMilli()%window.Milliseconds()
	resetAt := time.UnixMilli(windowStart + window.Milliseconds())

	counterKey := fmt.Sprintf("%s:%d", key, windowStart)
	// TTL one extra window past reset so in-flight reads never hit a reaped row.
	count, err := l.store.Increment(ctx, counterKey, resetAt.Add(window))
	if err != nil {
		return nil, fmt.Errorf("increment rate counter %s: %w", key, err)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Admit runs both namespace checks for a request. The API-key check runs
// first; the first failing check decides the Retry-After. The returned Result
// is the API-key one (its headers are what clients budget against), with err
// set to a RateLimitError when either check rejects.
func (l *Limiter) Admit(ctx context.Context, apiKeyID, ip string, keyLimit, ipLimit int, window time.Duration) (*Result, error) {
	keyRes, err := l.Check(ctx, NamespaceKey+":"+apiKeyID, keyLimit, window)
	if err != nil {
		return nil, err
	}
	if !keyRes.Allowed {
		return keyRes, &domain.RateLimitError{RetryAfter: keyRes.RetryAfter(l.nowFn())}
	}

	ipRes, err := l.Check(ctx, NamespaceIP+":"+ip, ipLimit, window)
	if err != nil {
		return nil, err
	}
	if !ipRes.Allowed {
		return keyRes, &domain.RateLimitError{RetryAfter: ipRes.RetryAfter(l.nowFn())}
	}
	return keyRes, nil
}
