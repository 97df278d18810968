// Package retry wraps a single remote call with exponential backoff. Rate
// limiting backs off faster than ordinary transient failures, and client
// errors are never retried.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Config defines retry behavior.
type Config struct {
	// MaxRetries bounds the additional attempts after the first one.
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	Multiplier float64       `yaml:"multiplier"`
	// RateLimitFactor is applied on top of Multiplier when the server throttles us.
	RateLimitFactor float64 `yaml:"rate_limit_factor"`
}

// DefaultConfig provides the stock retry settings.
var DefaultConfig = Config{
	MaxRetries:      3,
	BaseDelay:       3 * time.Second,
	Multiplier:      2.0,
	RateLimitFactor: 2.0,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionBackOff
	ActionFatal
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionBackOff:
		return "rate_limited"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type statusCoder interface {
	StatusCode() int
}

type terminal interface {
	Terminal() bool
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry
	}
	if errors.Is(err, context.Canceled) {
		return ActionFatal
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		switch {
		case code == http.StatusTooManyRequests:
			return ActionBackOff
		case code >= 400 && code < 500:
			return ActionFatal
		default:
			return ActionRetry
		}
	}

	var t terminal
	if errors.As(err, &t) && t.Terminal() {
		return ActionFatal
	}

	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") || strings.Contains(s, "rate limit") {
		return ActionBackOff
	}

	// Network, timeouts, 5xx
	return ActionRetry
}

// Event describes one retry decision.
type Event struct {
	Operation  string
	Attempt    int
	MaxRetries int
	Delay      time.Duration
	Action     ErrorAction
	Err        error
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithLogger sets the logger used for retry decisions.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retrier) { r.log = l }
}

// WithObserver registers a callback invoked before every backoff wait.
func WithObserver(fn func(Event)) Option {
	return func(r *Retrier) { r.observers = append(r.observers, fn) }
}

// Retrier executes operations under a Config. It is safe for concurrent use;
// backoff state lives in each Do call.
type Retrier struct {
	cfg       Config
	log       *slog.Logger
	observers []func(Event)
}

// New creates a Retrier.
func New(cfg Config, opts ...Option) *Retrier {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	if cfg.RateLimitFactor <= 0 {
		cfg.RateLimitFactor = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	r := &Retrier{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn until it succeeds, returns a fatal error, or MaxRetries
// additional attempts have failed. The last error is returned as is.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var (
		attempt int
		action  ErrorAction
		lastErr error
		delay   = float64(r.cfg.BaseDelay)
	)

	next := goretry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		delay *= r.cfg.Multiplier
		if action == ActionBackOff {
			delay *= r.cfg.RateLimitFactor
		}
		d := time.Duration(delay)

		if action == ActionBackOff {
			r.log.Warn("Request rate limited, backing off",
				"operation", operation, "attempt", attempt, "max", r.cfg.MaxRetries, "delay", d, "error", lastErr)
		} else {
			r.log.Warn("Request failed, retrying",
				"operation", operation, "attempt", attempt, "max", r.cfg.MaxRetries, "delay", d, "error", lastErr)
		}
		for _, fn := range r.observers {
			fn(Event{
				Operation:  operation,
				Attempt:    attempt,
				MaxRetries: r.cfg.MaxRetries,
				Delay:      d,
				Action:     action,
				Err:        lastErr,
			})
		}
		return d, false
	})

	err := goretry.Do(ctx, goretry.WithMaxRetries(uint64(r.cfg.MaxRetries), next), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		action = ClassifyError(err)
		if action == ActionFatal {
			return err
		}
		return goretry.RetryableError(err)
	})
	if err != nil {
		r.log.Error("Operation failed",
			"operation", operation, "attempts", attempt+1, "action", action.String(), "error", err)
	}
	return err
}

// Call is Do for operations that return a value.
func Call[T any](ctx context.Context, r *Retrier, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
