// Package ratelimit paces outbound sends so the channel provider does not
// throttle or ban the sending account.
package ratelimit

import (
	"math/rand"
	"sync"
	"time"
)

// Config holds the per-account sending constraints. All three gates guard
// the same account, so they live in one limiter rather than three.
type Config struct {
	PerMinute int
	PerHour   int
	MinGap    time.Duration
	MaxGap    time.Duration
}

// DefaultConfig matches the caps WhatsApp tolerates in practice.
func DefaultConfig() Config {
	return Config{
		PerMinute: 15,
		PerHour:   200,
		MinGap:    3 * time.Second,
		MaxGap:    5 * time.Second,
	}
}

// Limiter serializes slot acquisition for one channel account. Reserve holds
// the lock only while bookkeeping; callers perform the send outside it.
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	now    func() time.Time
	jitter func(time.Duration) time.Duration

	sends    []time.Time
	lastSend time.Time
}

func New(cfg Config) *Limiter {
	return &Limiter{
		cfg: cfg,
		now: time.Now,
		jitter: func(span time.Duration) time.Duration {
			if span <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(span)))
		},
	}
}

// NewWithClock injects a clock and deterministic jitter for tests.
func NewWithClock(cfg Config, now func() time.Time, jitter func(time.Duration) time.Duration) *Limiter {
	l := New(cfg)
	l.now = now
	if jitter != nil {
		l.jitter = jitter
	}
	return l
}

// Reserve claims a send slot. ok=false means a rolling window is exhausted
// and the caller should leave remaining messages pending for the next poll.
// On success, wait is the pacing delay to observe before actually sending.
func (l *Limiter) Reserve() (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if countSince(l.sends, now.Add(-time.Minute)) >= l.cfg.PerMinute {
		return 0, false
	}
	if len(l.sends) >= l.cfg.PerHour {
		return 0, false
	}

	gap := l.cfg.MinGap + l.jitter(l.cfg.MaxGap-l.cfg.MinGap)
	if !l.lastSend.IsZero() {
		if elapsed := now.Sub(l.lastSend); elapsed < gap {
			wait = gap - elapsed
		}
	}

	sendAt := now.Add(wait)
	l.sends = append(l.sends, sendAt)
	l.lastSend = sendAt
	return wait, true
}

// Remaining reports how many slots are left in the minute and hour windows.
func (l *Limiter) Remaining() (perMinute, perHour int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	perMinute = l.cfg.PerMinute - countSince(l.sends, now.Add(-time.Minute))
	perHour = l.cfg.PerHour - len(l.sends)
	if perMinute < 0 {
		perMinute = 0
	}
	if perHour < 0 {
		perHour = 0
	}
	return perMinute, perHour
}

// prune drops sends that fell out of the hour window.
func (l *Limiter) prune(now time.Time) {
	horizon := now.Add(-time.Hour)
	fresh := l.sends[:0]
	for _, t := range l.sends {
		if t.After(horizon) {
			fresh = append(fresh, t)
		}
	}
	l.sends = fresh
}

func countSince(sends []time.Time, since time.Time) int {
	n := 0
	for _, t := range sends {
		if t.After(since) {
			n++
		}
	}
	return n
}

// Registry hands out one limiter per channel account.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	limiters map[string]*Limiter
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		limiters: make(map[string]*Limiter),
	}
}

// For returns the limiter for the given account, creating it on first use.
func (r *Registry) For(accountID string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[accountID]
	if !ok {
		l = New(r.cfg)
		r.limiters[accountID] = l
	}
	return l
}
