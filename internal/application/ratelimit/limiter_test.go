package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/authbridge/verification-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounters is an in-memory CounterStore with atomic semantics.
type fakeCounters struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{counts: make(map[string]int64)}
}

func (f *fakeCounters) Increment(_ context.Context, key string, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

type failingCounters struct{}

func (failingCounters) Increment(context.Context, string, time.Time) (int64, error) {
	return 0, errors.New("store unavailable")
}

func fixedLimiter(store CounterStore, now time.Time) *Limiter {
	l := NewLimiter(store)
	l.nowFn = func() time.Time { return now }
	return l
}

func TestCheck_CountsDownThenRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	l := fixedLimiter(newFakeCounters(), now)

	for i := 0; i < 10; i++ {
		res, err := l.Check(context.Background(), "key:k", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d must be allowed", i+1)
		assert.Equal(t, 9-i, res.Remaining)
		assert.Equal(t, 10, res.Limit)
	}

	res, err := l.Check(context.Background(), "key:k", 10, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestCheck_WindowElapsed_Resets(t *testing.T) {
	store := newFakeCounters()
	now := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	l := fixedLimiter(store, now)

	for i := 0; i < 11; i++ {
		_, err := l.Check(context.Background(), "key:k", 10, time.Minute)
		require.NoError(t, err)
	}

	// Advance past the window boundary: fresh counter key, count restarts at 1.
	l.nowFn = func() time.Time { return now.Add(time.Minute) }
	res, err := l.Check(context.Background(), "key:k", 10, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
}

func TestCheck_ResetAtIsWindowBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 45, 0, time.UTC)
	l := fixedLimiter(newFakeCounters(), now)

	res, err := l.Check(context.Background(), "key:k", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC), res.ResetAt.UTC())
	assert.Equal(t, 15, res.RetryAfter(now))
}

func TestAdmit_BothNamespacesMustPass(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := fixedLimiter(newFakeCounters(), now)

	res, err := l.Admit(context.Background(), "ak_1", "10.0.0.1", 2, 100, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	_, err = l.Admit(context.Background(), "ak_1", "10.0.0.1", 2, 100, time.Minute)
	require.NoError(t, err)

	// Third request exceeds the per-key limit even though the IP limit is fine.
	_, err = l.Admit(context.Background(), "ak_1", "10.0.0.1", 2, 100, time.Minute)
	var rle *domain.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.GreaterOrEqual(t, rle.RetryAfter, 1)
}

func TestAdmit_IPLimitRejectsIndependently(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := fixedLimiter(newFakeCounters(), now)

	// Different API keys, same IP: the IP namespace fills up on its own.
	_, err := l.Admit(context.Background(), "ak_1", "10.0.0.9", 100, 1, time.Minute)
	require.NoError(t, err)

	_, err = l.Admit(context.Background(), "ak_2", "10.0.0.9", 100, 1, time.Minute)
	var rle *domain.RateLimitError
	require.ErrorAs(t, err, &rle)
}

func TestCheck_StoreFailurePropagates(t *testing.T) {
	l := NewLimiter(failingCounters{})
	_, err := l.Check(context.Background(), "key:k", 10, time.Minute)
	require.Error(t, err)
}
