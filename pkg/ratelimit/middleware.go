package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mytad/game-auth/pkg/config"
	"github.com/mytad/game-auth/pkg/errors"
)

// bucketTTL is how long an idle per-IP bucket is kept
const bucketTTL = time.Hour

// Throttle is the in-process request throttle in front of every route.
// It is independent of the login-attempt window: it caps request volume,
// the window caps failed credentials.
type Throttle struct {
	cfg            config.RateLimitConfig
	clientIP       func(*http.Request) string
	global         *KeyedLimiter
	perIP          *KeyedLimiter
	endpoints      map[string]*KeyedLimiter
	endpointLimits map[string]int
}

// NewThrottle creates a throttle. clientIP resolves the caller's address.
func NewThrottle(cfg config.RateLimitConfig, clientIP func(*http.Request) string) *Throttle {
	t := &Throttle{
		cfg:            cfg,
		clientIP:       clientIP,
		endpoints:      make(map[string]*KeyedLimiter),
		endpointLimits: make(map[string]int),
	}
	if cfg.GlobalEnabled {
		t.global = NewKeyedLimiter(cfg.GlobalCapacity, cfg.GlobalRefillRate, 0)
	}
	if cfg.PerIPEnabled {
		t.perIP = NewKeyedLimiter(cfg.PerIPCapacity, cfg.PerIPRefillRate, bucketTTL)
	}
	return t
}

// LimitEndpoint adds a per-IP bucket for one "METHOD /path" pair
func (t *Throttle) LimitEndpoint(method, path string, capacity int, refillRate float64) *Throttle {
	key := method + " " + path
	t.endpoints[key] = NewKeyedLimiter(capacity, refillRate, bucketTTL)
	t.endpointLimits[key] = capacity
	return t
}

// Run evicts idle buckets until ctx is done
func (t *Throttle) Run(ctx context.Context) {
	if t.perIP != nil {
		go t.perIP.RunSweeper(ctx)
	}
	for _, limiter := range t.endpoints {
		go limiter.RunSweeper(ctx)
	}
}

// Handler returns the throttling middleware
func (t *Throttle) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.global != nil && !t.global.Allow("global") {
			t.reject(w, r, "global")
			return
		}

		ip := t.clientIP(r)
		if t.perIP != nil && ip != "" && !t.perIP.Allow(ip) {
			t.reject(w, r, "ip")
			return
		}

		endpoint := r.Method + " " + r.URL.Path
		if limiter, ok := t.endpoints[endpoint]; ok {
			if !limiter.Allow(ip) {
				t.reject(w, r, "endpoint")
				return
			}
			w.Header().Set("X-RateLimit-Limit-Endpoint", strconv.Itoa(t.endpointLimits[endpoint]))
		}

		if t.perIP != nil && ip != "" {
			w.Header().Set("X-RateLimit-Limit-IP", strconv.Itoa(t.cfg.PerIPCapacity))
		}
		next.ServeHTTP(w, r)
	})
}

func (t *Throttle) reject(w http.ResponseWriter, r *http.Request, limitType string) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"ip", t.clientIP(r),
		"path", r.URL.Path,
		"method", r.Method,
	)
	w.Header().Set("Retry-After", "60")
	errors.WriteHTTP(w, r, errors.RateLimitExceeded("Too many requests. Please try again later.").
		WithDetail("type", limitType))
}
