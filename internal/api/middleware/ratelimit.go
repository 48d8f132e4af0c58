package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"tradejournal/pkg/ratelimit"
)

// RateLimit - middleware, ограничивающий частоту запросов с одного IP.
//
// На каждый IP заводится свой token bucket на perMinute запросов в
// минуту с burst'ом в полный минутный лимит. Превышение - 429.
// Старые bucket'ы периодически выбрасываются, чтобы карта не росла
// бесконечно.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	limiters := &ipLimiters{
		perMinute: perMinute,
		buckets:   make(map[string]*ipBucket),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiters.allow(ip) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type ipBucket struct {
	limiter  *ratelimit.RateLimiter
	lastSeen time.Time
}

type ipLimiters struct {
	perMinute int
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	lastSweep time.Time
}

func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	// Чистка неактивных IP раз в 10 минут
	if now.Sub(l.lastSweep) > 10*time.Minute {
		for key, b := range l.buckets {
			if now.Sub(b.lastSeen) > 10*time.Minute {
				delete(l.buckets, key)
			}
		}
		l.lastSweep = now
	}

	b, exists := l.buckets[ip]
	if !exists {
		rate := float64(l.perMinute) / 60.0
		b = &ipBucket{limiter: ratelimit.NewRateLimiter(rate, float64(l.perMinute))}
		l.buckets[ip] = b
	}
	b.lastSeen = now

	return b.limiter.Allow()
}

// clientIP извлекает IP клиента из запроса
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
