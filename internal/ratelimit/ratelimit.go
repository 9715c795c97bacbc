package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Rule defines a rate limit for a specific method+path combination. Limit
// requests are allowed in a burst and refill evenly over Window.
type Rule struct {
	Method string
	Path   string
	Limit  int
	Window time.Duration
}

// Result contains rate limit status for a request.
type Result struct {
	Limit     int
	Remaining int
	RetryIn   time.Duration
}

type entry struct {
	ruleKey  string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per IP+method+path.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]Rule // key: "METHOD:PATH"
	entries map[string]*entry
	clock   Clock
}

// NewLimiter creates a Limiter with the given rules.
func NewLimiter(rules []Rule) *Limiter {
	ruleMap := make(map[string]Rule, len(rules))
	for _, r := range rules {
		ruleMap[r.Method+":"+r.Path] = r
	}
	return &Limiter{
		rules:   ruleMap,
		entries: make(map[string]*entry),
		clock:   realClock{},
	}
}

// Allow checks whether a request from ip to method+path is allowed.
// If no rule matches the method+path, it returns (Result{}, true).
func (l *Limiter) Allow(ip, method, path string) (Result, bool) {
	ruleKey := method + ":" + path
	rule, ok := l.rules[ruleKey]
	if !ok {
		return Result{}, true
	}

	now := l.clock.Now()
	key := ip + ":" + ruleKey

	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists {
		every := rule.Window / time.Duration(rule.Limit)
		e = &entry{ruleKey: ruleKey, limiter: rate.NewLimiter(rate.Every(every), rule.Limit)}
		l.entries[key] = e
	}
	e.lastSeen = now

	if e.limiter.AllowN(now, 1) {
		return Result{Limit: rule.Limit, Remaining: remaining(e.limiter, now)}, true
	}

	r := e.limiter.ReserveN(now, 1)
	retryIn := r.DelayFrom(now)
	r.CancelAt(now)
	return Result{Limit: rule.Limit, Remaining: 0, RetryIn: retryIn}, false
}

func remaining(lim *rate.Limiter, now time.Time) int {
	return int(math.Max(0, math.Floor(lim.TokensAt(now))))
}

// Cleanup removes buckets idle for at least a full window; they would be
// full again anyway. Call periodically to prevent unbounded growth.
func (l *Limiter) Cleanup() {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		rule, ok := l.rules[e.ruleKey]
		if !ok || now.Sub(e.lastSeen) >= rule.Window {
			delete(l.entries, key)
		}
	}
}

// Len reports the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
