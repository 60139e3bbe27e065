package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrRateLimited is returned to the error handler when a request exceeds
// the window ceiling.
var ErrRateLimited = errors.New("too many requests")

// Logger mirrors the logging surface of the root package without importing it
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// DefaultWindow is the fixed window length counters reset on
const DefaultWindow = 5 * time.Minute

// DefaultMax is the number of requests admitted per window per key
const DefaultMax = 20

// DefaultSweepInterval is how often idle counters are reclaimed
const DefaultSweepInterval = 10 * time.Minute

// Decision is the outcome of admitting a single request.
type Decision struct {
	Allowed bool
	// Remaining is the number of requests left in the window after this
	// one. Zero when rejected.
	Remaining int
	// RetryAfter is how long the caller should wait before retrying,
	// floored at one second. Zero when allowed.
	RetryAfter time.Duration
}

type counter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	// dead is set by Sweep before the map entry is removed; an Admit
	// holding a stale pointer must retry against a fresh entry.
	dead bool
}

// Limiter tracks fixed-window request counts per key. Safe for concurrent
// use; each key's reset-or-increment happens under that key's own lock.
type Limiter struct {
	counters *xsync.MapOf[string, *counter]
	window   time.Duration
	max      int
	now      func() time.Time

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

type LimiterOption func(*Limiter)

// WithClock replaces the limiter's time source.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSweepInterval changes how often idle counters are reclaimed.
func WithSweepInterval(interval time.Duration) LimiterOption {
	return func(l *Limiter) {
		if interval > 0 {
			l.sweepInterval = interval
		}
	}
}

func NewLimiter(window time.Duration, max int, opts ...LimiterOption) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}

	l := &Limiter{
		counters:      xsync.NewMapOf[string, *counter](),
		window:        window,
		max:           max,
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		stop:          make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Admit records one request for key and decides whether it may proceed.
func (l *Limiter) Admit(key string) Decision {
	now := l.now()

	for {
		c, _ := l.counters.LoadOrCompute(key, func() *counter {
			return &counter{windowStart: now}
		})

		c.mu.Lock()

		if c.dead {
			// Sweep removed this entry between LoadOrCompute and Lock
			c.mu.Unlock()
			continue
		}

		if now.Sub(c.windowStart) >= l.window {
			c.windowStart = now
			c.count = 0
		}

		if c.count >= l.max {
			retryAfter := l.window - now.Sub(c.windowStart)
			if retryAfter < time.Second {
				retryAfter = time.Second
			}
			c.mu.Unlock()
			return Decision{
				Allowed:    false,
				Remaining:  0,
				RetryAfter: retryAfter,
			}
		}

		c.count++
		remaining := l.max - c.count
		c.mu.Unlock()

		return Decision{
			Allowed:   true,
			Remaining: remaining,
		}
	}
}

// Max returns the per-window ceiling.
func (l *Limiter) Max() int {
	return l.max
}

// Sweep removes counters whose window expired with no new activity.
func (l *Limiter) Sweep() {
	now := l.now()
	l.counters.Range(func(key string, c *counter) bool {
		c.mu.Lock()
		if now.Sub(c.windowStart) >= l.window {
			c.dead = true
			l.counters.Delete(key)
		}
		c.mu.Unlock()
		return true
	})
}

// Size returns the number of tracked keys.
func (l *Limiter) Size() int {
	return l.counters.Size()
}

// Start launches the background sweeper. It runs until Stop is called or
// ctx is cancelled.
func (l *Limiter) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the background sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

// Config defines the configuration for the rate limit middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(router.Context) bool

	// Limiter is the shared admission counter. Required when Window and
	// Max are not set.
	Limiter *Limiter

	// Window is the fixed window length used when Limiter is nil
	Window time.Duration

	// Max is the per-window ceiling used when Limiter is nil
	Max int

	// KeyFunc derives the client key from the request. Defaults to the
	// client IP.
	KeyFunc func(router.Context) string

	// ErrorHandler handles rejected requests
	ErrorHandler router.ErrorHandler

	// Logger logs rejections
	Logger Logger
}

// New creates rate limiting middleware. Every response carries the limit
// headers so clients can pace themselves before hitting the ceiling.
func New(config ...Config) router.MiddlewareFunc {
	cfg := configDefault(config...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			key := cfg.KeyFunc(ctx)
			decision := cfg.Limiter.Admit(key)

			ctx.SetHeader("X-RateLimit-Limit", strconv.Itoa(cfg.Limiter.Max()))
			ctx.SetHeader("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				retrySeconds := int((decision.RetryAfter + time.Second - 1) / time.Second)
				if retrySeconds < 1 {
					retrySeconds = 1
				}
				ctx.SetHeader("Retry-After", strconv.Itoa(retrySeconds))
				cfg.Logger.Warn("rate limit exceeded for %s on %s", key, ctx.Path())
				return cfg.ErrorHandler(ctx, ErrRateLimited)
			}

			return ctx.Next()
		}
	}
}

func configDefault(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Limiter == nil {
		cfg.Limiter = NewLimiter(cfg.Window, cfg.Max)
	}

	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(ctx router.Context) string {
			return ctx.IP()
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			return ctx.JSON(429, map[string]any{
				"error": "too many requests",
			})
		}
	}

	return cfg
}
