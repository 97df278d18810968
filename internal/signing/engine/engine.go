// Package engine drives a sign-in run: it partitions the forum list into
// batches, signs each batch concurrently, and re-attempts the failures of
// every batch for a bounded number of rounds before moving on.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/tiebasign/internal/core/domain"
	"github.com/vietddude/tiebasign/internal/signing/classify"
	"github.com/vietddude/tiebasign/internal/signing/metrics"
	"github.com/vietddude/tiebasign/internal/signing/retry"
	"github.com/vietddude/tiebasign/internal/signing/store"
	"github.com/vietddude/tiebasign/internal/signing/summary"
)

// Config holds batching and retry-round settings.
type Config struct {
	BatchSize     int           `yaml:"batch_size"`
	BatchInterval time.Duration `yaml:"batch_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	// EscalateRoundInterval stretches the wait before rounds after the first.
	EscalateRoundInterval bool `yaml:"escalate_round_interval"`
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:             20,
		BatchInterval:         time.Second,
		MaxRetries:            3,
		RetryInterval:         5 * time.Second,
		EscalateRoundInterval: true,
	}
}

// Action performs the remote sign-in for one item and returns the raw response.
type Action func(ctx context.Context, item domain.Item) ([]byte, error)

// Waiter blocks for d or until ctx is done.
type Waiter func(ctx context.Context, d time.Duration) error

// Option configures an Engine.
type Option func(*Engine)

// WithWaiter replaces the pacing waiter.
func WithWaiter(w Waiter) Option {
	return func(e *Engine) { e.wait = w }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine runs one batch/retry pass over a forum list.
type Engine struct {
	cfg     Config
	action  Action
	retrier *retry.Retrier
	wait    Waiter
	log     *slog.Logger
}

// New creates an Engine.
func New(cfg Config, action Action, retrier *retry.Retrier, opts ...Option) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	e := &Engine{
		cfg:     cfg,
		action:  action,
		retrier: retrier,
		wait:    sleep,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run signs every item and returns the final snapshot ordered by item index.
// Per-item failures never surface as errors; an error means the context was
// cancelled or the store rejected a write. The snapshot taken so far is
// returned with it.
func (e *Engine) Run(ctx context.Context, items []domain.Item) ([]domain.ResultRecord, error) {
	st := store.New()
	batches := Plan(items, e.cfg.BatchSize)

	e.log.Info("Starting batch sign-in",
		"items", len(items), "batches", len(batches),
		"batch_size", e.cfg.BatchSize, "batch_interval", e.cfg.BatchInterval)

	done := 0
	for i, batch := range batches {
		start := time.Now()
		e.log.Info("Processing batch", "batch", i+1, "total", len(batches), "size", len(batch))

		failed, err := e.runBatch(ctx, st, batch)
		if err != nil {
			return st.Snapshot(), fmt.Errorf("batch %d: %w", i+1, err)
		}
		if len(failed) > 0 {
			if err := e.retryRounds(ctx, st, failed); err != nil {
				return st.Snapshot(), fmt.Errorf("batch %d retries: %w", i+1, err)
			}
		}
		metrics.BatchDuration.Observe(time.Since(start).Seconds())

		done += len(batch)
		progress := summary.Aggregate(st.Snapshot())
		e.log.Info("Batch completed",
			"batch", i+1, "done", done, "total", len(items),
			"success", progress.Success, "already", progress.AlreadyDone, "failed", progress.Failed)

		if i < len(batches)-1 && e.cfg.BatchInterval > 0 {
			e.log.Debug("Waiting before next batch", "delay", e.cfg.BatchInterval)
			if err := e.wait(ctx, e.cfg.BatchInterval); err != nil {
				return st.Snapshot(), err
			}
		}
	}

	return st.Snapshot(), nil
}

// runBatch records skipped items, signs the rest concurrently and returns the
// items whose initial attempt failed.
func (e *Engine) runBatch(ctx context.Context, st *store.ResultStore, batch []domain.Item) ([]domain.Item, error) {
	toSign := make([]domain.Item, 0, len(batch))
	for _, item := range batch {
		if item.AlreadyDone {
			if err := st.RecordInitial(item, domain.AlreadyDone()); err != nil {
				return nil, err
			}
			continue
		}
		toSign = append(toSign, item)
	}

	failedAt := make([]bool, len(toSign))
	var g errgroup.Group
	for i, item := range toSign {
		g.Go(func() error {
			outcome := e.attempt(ctx, item, 0)
			failedAt[i] = !outcome.Category.Succeeded()
			return st.RecordInitial(item, outcome)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return pick(toSign, failedAt), nil
}

// retryRounds re-attempts failed items until they all succeed or MaxRetries
// rounds have run. Only items that failed in the previous round are retried.
func (e *Engine) retryRounds(ctx context.Context, st *store.ResultStore, failed []domain.Item) error {
	for round := 1; round <= e.cfg.MaxRetries && len(failed) > 0; round++ {
		interval := RoundInterval(e.cfg.RetryInterval, round, e.cfg.EscalateRoundInterval)
		e.log.Info("Retrying failed forums",
			"round", round, "max", e.cfg.MaxRetries, "count", len(failed), "wait", interval)
		if err := e.wait(ctx, interval); err != nil {
			return err
		}
		metrics.RetryRounds.Inc()

		stillFailed := make([]bool, len(failed))
		var g errgroup.Group
		for i, item := range failed {
			g.Go(func() error {
				outcome := e.attempt(ctx, item, round)
				replaced, err := st.RecordRetry(item, outcome, round)
				if err != nil {
					return err
				}
				if replaced {
					e.log.Info("Retry succeeded", "forum", item.MaskedName(), "round", round)
				} else {
					stillFailed[i] = true
					e.log.Warn("Retry still failing",
						"forum", item.MaskedName(), "round", round, "reason", outcome.Reason)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		failed = pick(failed, stillFailed)
		e.log.Info("Retry round completed", "round", round, "still_failed", len(failed))
	}

	if len(failed) > 0 {
		e.log.Warn("Forums still failing after retries", "count", len(failed), "rounds", e.cfg.MaxRetries)
	}
	return nil
}

// attempt performs one action through the transport retrier and classifies it.
func (e *Engine) attempt(ctx context.Context, item domain.Item, round int) domain.Outcome {
	raw, err := retry.Call(ctx, e.retrier, "sign "+item.MaskedName(), func(ctx context.Context) ([]byte, error) {
		return e.action(ctx, item)
	})

	var outcome domain.Outcome
	if err != nil {
		outcome = OutcomeFromError(err)
	} else {
		outcome = classify.Classify(raw)
	}

	metrics.SignAttempts.WithLabelValues(string(outcome.Category), strconv.Itoa(round)).Inc()
	e.log.Debug("Sign attempt classified",
		"forum", item.MaskedName(), "round", round, "category", outcome.Category, "reason", outcome.Reason)
	return outcome
}

type statusCoder interface {
	StatusCode() int
}

// OutcomeFromError turns an exhausted or aborted action into a failed outcome.
func OutcomeFromError(err error) domain.Outcome {
	switch retry.ClassifyError(err) {
	case retry.ActionBackOff:
		return domain.RateLimited()
	case retry.ActionFatal:
		var sc statusCoder
		if errors.As(err, &sc) {
			return domain.PermanentFailure(sc.StatusCode(), fmt.Sprintf("http %d", sc.StatusCode()))
		}
		return domain.Error(err.Error(), -1, "")
	default:
		var sc statusCoder
		if errors.As(err, &sc) {
			return domain.TransientFailure(fmt.Sprintf("http %d", sc.StatusCode()))
		}
		return domain.TransientFailure(err.Error())
	}
}

// RoundInterval returns the wait before retry round `round`. With escalation,
// round r > 1 waits base*r/(r-1).
func RoundInterval(base time.Duration, round int, escalate bool) time.Duration {
	if !escalate || round <= 1 {
		return base
	}
	return base * time.Duration(round) / time.Duration(round-1)
}

func pick(items []domain.Item, keep []bool) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for i, item := range items {
		if keep[i] {
			out = append(out, item)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
