package middleware

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/authbridge/verification-api/internal/application/ratelimit"
	"github.com/authbridge/verification-api/internal/domain"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Limits carries the per-window admission thresholds.
type Limits struct {
	PerKey int
	PerIP  int
	Window time.Duration
}

// RateLimit enforces the shared fixed-window limits per API key and per
// source IP. Both checks must pass; the first failure decides Retry-After.
// The counter lives in the shared store, so the limit holds across worker
// instances. A counter-store outage fails open — admission control must not
// take the API down with it.
func RateLimit(limiter *ratelimit.Limiter, limits Limits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKeyID, ok := APIKeyIDFromContext(r.Context())
			if !ok {
				apiKeyID = "anonymous"
			}

			res, err := limiter.Admit(r.Context(), apiKeyID, realIP(r), limits.PerKey, limits.PerIP, limits.Window)
			if err != nil {
				var rle *domain.RateLimitError
				if errors.As(err, &rle) {
					slog.Warn("rate limit exceeded",
						"request_id", chimiddleware.GetReqID(r.Context()),
						"api_key_id", apiKeyID, "ip", realIP(r), "retry_after", rle.RetryAfter)
					setLimitHeaders(w, res)
					w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfter))
					writeJSONError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
					return
				}
				slog.Warn("rate limit store unavailable, failing open", "err", err)
				next.ServeHTTP(w, r)
				return
			}

			setLimitHeaders(w, res)
			next.ServeHTTP(w, r)
		})
	}
}

func setLimitHeaders(w http.ResponseWriter, res *ratelimit.Result) {
	if res == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// realIP resolves the client address behind proxies: first X-Forwarded-For
// entry, then X-Real-Ip, then the connection's remote address.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SurgeGuard is a per-IP token-bucket guard with automatic stale-entry
// cleanup. It sits in front of the shared fixed-window limiter to shed
// bursts before they cost a counter-store round trip. Process-local by
// design: the authoritative limit is the shared one.
type SurgeGuard struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	r        rate.Limit
	burst    int
}

// NewSurgeGuard creates a per-IP guard: r requests/second, burst up to burst requests.
func NewSurgeGuard(r rate.Limit, burst int) *SurgeGuard {
	sg := &SurgeGuard{
		limiters: make(map[string]*ipLimiter),
		r:        r,
		burst:    burst,
	}
	go sg.cleanup()
	return sg
}

func (sg *SurgeGuard) get(ip string) *rate.Limiter {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	if v, ok := sg.limiters[ip]; ok {
		v.lastSeen = time.Now()
		return v.limiter
	}
	l := rate.NewLimiter(sg.r, sg.burst)
	sg.limiters[ip] = &ipLimiter{limiter: l, lastSeen: time.Now()}
	return l
}

// cleanup removes stale entries every 5 minutes.
func (sg *SurgeGuard) cleanup() {
	for {
		time.Sleep(5 * time.Minute)
		sg.mu.Lock()
		for ip, v := range sg.limiters {
			if time.Since(v.lastSeen) > 10*time.Minute {
				delete(sg.limiters, ip)
			}
		}
		sg.mu.Unlock()
	}
}

// Limit is the middleware handler that sheds excess requests per remote IP.
func (sg *SurgeGuard) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sg.get(realIP(r)).Allow() {
			writeJSONError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
