// Package ratelimit provides per-client token-bucket limits for HTTP routes.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vizionai/vizion/internal/logging"
)

// Rule allows Max requests per Window for each client key.
type Rule struct {
	Name   string
	Max    int
	Window time.Duration
}

var (
	Global   = Rule{Name: "global", Max: 100, Window: time.Minute}
	Register = Rule{Name: "register", Max: 10, Window: time.Hour}
	Post     = Rule{Name: "post", Max: 1, Window: 30 * time.Minute}
	Comment  = Rule{Name: "comment", Max: 1, Window: 20 * time.Second}
	Like     = Rule{Name: "like", Max: 1, Window: 5 * time.Second}
	Follow   = Rule{Name: "follow", Max: 10, Window: time.Hour}
)

// Recorder counts rejected requests.
type Recorder interface {
	RateLimited(rule string)
}

// KeyFunc picks the client key for a request.
type KeyFunc func(r *http.Request) string

// ByIP keys requests by remote host. Run behind middleware.RealIP.
func ByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per client key for a single rule.
type Limiter struct {
	rule     Rule
	mu       sync.Mutex
	limiters map[string]*entry

	Log     logging.Logger
	Metrics Recorder
	Now     func() time.Time
}

func New(rule Rule) *Limiter {
	return &Limiter{
		rule:     rule,
		limiters: make(map[string]*entry),
		Log:      logging.Discard(),
		Now:      time.Now,
	}
}

func (l *Limiter) Rule() Rule { return l.rule }

func (l *Limiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[key]
	if !ok {
		every := l.rule.Window / time.Duration(l.rule.Max)
		e = &entry{limiter: rate.NewLimiter(rate.Every(every), l.rule.Max)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Allow takes a token for key. When the bucket is empty it returns false and
// the time until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.Now()
	lim := l.get(key, now)
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, l.rule.Window
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup drops buckets idle for longer than the rule window; an idle bucket
// is full again, so dropping it changes nothing for the client.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.Now()
	removed := 0
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.rule.Window {
			delete(l.limiters, k)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// Handler rejects requests over the limit with 429.
func (l *Limiter) Handler(key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ByIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			ok, retry := l.Allow(k)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			l.Log.WithFields(logging.Fields{
				"rule":   l.rule.Name,
				"key":    k,
				"path":   r.URL.Path,
				"method": r.Method,
			}).Warn("rate limit exceeded")
			if l.Metrics != nil {
				l.Metrics.RateLimited(l.rule.Name)
			}

			after := FormatRetry(retry)
			secs := int(math.Ceil(retry.Seconds()))
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"statusCode": http.StatusTooManyRequests,
				"error":      http.StatusText(http.StatusTooManyRequests),
				"message":    "Rate limit exceeded. Retry in " + after,
				"retryAfter": after,
			})
		})
	}
}

// FormatRetry renders a wait in whole seconds, minutes or hours.
func FormatRetry(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return plural(int(math.Ceil(d.Hours())), "hour")
	case d >= time.Minute:
		return plural(int(math.Ceil(d.Minutes())), "minute")
	default:
		return plural(max(1, int(math.Ceil(d.Seconds()))), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
