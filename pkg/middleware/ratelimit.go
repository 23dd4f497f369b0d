package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"isp-portal/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL     = 30 * time.Minute
	limiterSweepPeriod = 5 * time.Minute
)

type ipLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// IPRateLimiter hands out one token bucket per client IP. Buckets idle for
// longer than limiterIdleTTL are dropped on the next sweep.
type IPRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	return &IPRateLimiter{
		limiters:  make(map[string]*ipLimiter),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow consumes one token from ip's bucket.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterSweepPeriod {
		for key, il := range l.limiters {
			if now.Sub(il.last) > limiterIdleTTL {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}

	il, ok := l.limiters[ip]
	if !ok {
		il = &ipLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = il
	}
	il.last = now

	return il.limiter.AllowN(now, 1)
}

func (l *IPRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimit answers 429 once a client IP exceeds its bucket.
func RateLimit(limiter *IPRateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.Allow(ip) {
				logger.Warn("Rate limit exceeded", zap.String("ip", ip), zap.String("path", r.URL.Path))
				utils.ResponseTooManyRequests(w, "Too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP stores the caller's address in the request context.
func ClientIP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := utils.SetClientIP(r.Context(), clientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
