// Package ratelimit implements fixed-window request counting keyed by client identifier.
//
// A window starts on the first request for a key and lasts Rule.Window; the counter resets
// when the window has elapsed. Bursts of up to 2*MaxRequests straddling a window boundary
// are possible and accepted.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/config"
	"github.com/jmehdipour/realestate-billing/internal/metrics"
)

// Named rules for the endpoint classes that consult the limiter.
const (
	RuleSearch            = "search"
	RuleProperty          = "property_create"
	RuleMessaging         = "messaging"
	RuleAuth              = "auth"
	RulePhoneVerification = "phone_verification"
	RuleCheckout          = "checkout"
	RuleGeneral           = "general"
)

type Rule struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// RetryAfter is the time left until the window resets, rounded up to whole seconds.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetTime.Sub(now)
	if d <= 0 {
		return 0
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

// Limiter checks one request for key against rule.
type Limiter interface {
	Check(ctx context.Context, key string, rule Rule) (Result, error)
}

// Rules is the set of named rules loaded from config.
type Rules map[string]Rule

func RulesFromConfig(cfg map[string]config.RuleConfig) Rules {
	out := make(Rules, len(cfg))
	for name, rc := range cfg {
		out[name] = Rule{Name: name, MaxRequests: rc.MaxRequests, Window: rc.Window}
	}
	return out
}

// Get returns the named rule, or the general rule when name is unknown.
func (rs Rules) Get(name string) (Rule, bool) {
	if r, ok := rs[name]; ok {
		return r, true
	}
	r, ok := rs[RuleGeneral]
	return r, ok
}

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps counters in process memory. It does not coordinate across
// instances; use RedisLimiter when more than one replica serves traffic.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{entries: make(map[string]*entry), now: time.Now}
}

var _ Limiter = (*MemoryLimiter)(nil)

func (l *MemoryLimiter) Check(_ context.Context, key string, rule Rule) (Result, error) {
	k := rule.Name + ":" + key
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[k]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(rule.Window)}
		l.entries[k] = e
		return Result{Allowed: true, Limit: rule.MaxRequests, Remaining: rule.MaxRequests - 1, ResetTime: e.resetAt}, nil
	}

	if e.count < rule.MaxRequests {
		e.count++
		return Result{Allowed: true, Limit: rule.MaxRequests, Remaining: rule.MaxRequests - e.count, ResetTime: e.resetAt}, nil
	}
	return Result{Allowed: false, Limit: rule.MaxRequests, Remaining: 0, ResetTime: e.resetAt}, nil
}

// Sweep drops entries whose window has elapsed and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run sweeps on every interval until ctx is cancelled and reports the
// remaining key count.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			l.Sweep()
			metrics.RateLimitKeys.Set(float64(l.Len()))
		}
	}
}
