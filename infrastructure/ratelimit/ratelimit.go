// Package ratelimit guards the compile-service HTTP surface
// (internal/httpapi) against request floods with a token-bucket limiter
// backed by golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config tunes the limiter.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig matches the teacher's own default tuning: a generous
// per-second bucket with a 2x burst allowance.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 20, Burst: 40}
}

// Limiter is a single shared token bucket, safe for concurrent use
// across a compile service's request handlers.
type Limiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	cfg     Config
}

// New returns a Limiter configured per cfg. A non-positive
// RequestsPerSecond takes DefaultConfig's rate; a non-positive Burst
// becomes twice the (resulting) rate.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst), cfg: cfg}
}

// Allow reports whether a request may proceed right now, consuming one
// token if so.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Allow()
}

// Reset restores the limiter to a fresh bucket at its configured rate,
// e.g. after a config reload.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
}

// RetryAfter is the client-facing hint internal/httpapi's rate-limit
// middleware sends when a request is rejected: the time until one token
// frees up.
func (l *Limiter) RetryAfter() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r := l.limiter.Reserve()
	defer r.Cancel()
	return r.Delay()
}
