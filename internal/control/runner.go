package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/tiebasign/internal/core/domain"
	redisclient "github.com/vietddude/tiebasign/internal/infra/redis"
	"github.com/vietddude/tiebasign/internal/infra/tieba"
	"github.com/vietddude/tiebasign/internal/notify"
	"github.com/vietddude/tiebasign/internal/signing/engine"
	"github.com/vietddude/tiebasign/internal/signing/metrics"
	"github.com/vietddude/tiebasign/internal/signing/retry"
	"github.com/vietddude/tiebasign/internal/signing/summary"
)

var beijing = time.FixedZone("CST", 8*60*60)

// Config holds everything a run needs besides its collaborators.
type Config struct {
	BDUSS     string
	Signing   engine.Config
	Transport retry.Config
	Notify    notify.Config

	LockTTL     time.Duration
	HistorySize int
	HistoryTTL  time.Duration

	PushgatewayURL string
	MetricsJob     string
}

// Report is the result of a completed run.
type Report struct {
	RunID      string
	UserID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Records    []domain.ResultRecord
	Summary    summary.Summary
	Text       string
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Option configures a Runner.
type Option func(*Runner)

// WithArchive enables the run lock and report archive.
func WithArchive(a Archive) Option {
	return func(r *Runner) { r.archive = a }
}

// WithWaiter replaces the pacing wait used between batches and rounds.
func WithWaiter(w engine.Waiter) Option {
	return func(r *Runner) { r.wait = w }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// Runner drives one sign-in pass: authenticate, list, fetch the token,
// sign every forum, then report.
type Runner struct {
	cfg      Config
	remote   Remote
	notifier Notifier
	archive  Archive
	wait     engine.Waiter
	now      func() time.Time
	log      *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, remote Remote, notifier Notifier, opts ...Option) *Runner {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if cfg.MetricsJob == "" {
		cfg.MetricsJob = "tiebasign"
	}
	r := &Runner{
		cfg:      cfg,
		remote:   remote,
		notifier: notifier,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one pass. A non-nil error means the run aborted before a
// summary could be produced; per-forum failures never surface here.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	started := r.now()

	r.log.Info("Starting Tieba sign-in",
		"run_id", runID,
		"utc", started.UTC().Format("2006-01-02 15:04:05"),
		"beijing", started.In(beijing).Format("2006-01-02 15:04:05"))

	if r.cfg.BDUSS == "" {
		return nil, r.fail(ctx, ErrMissingCredential)
	}

	retrier := retry.New(r.cfg.Transport, retry.WithLogger(r.log), retry.WithObserver(observeRetry))
	bduss := r.cfg.BDUSS

	identity, err := retry.Call(ctx, retrier, "authenticate", func(ctx context.Context) (tieba.Identity, error) {
		return r.remote.Authenticate(ctx, bduss)
	})
	if err != nil {
		return nil, r.fail(ctx, authFailure(err))
	}
	r.log.Info("Authenticated", "user_id", identity.UserID)

	if r.archive != nil {
		release, err := r.lock(ctx, identity.UserID, runID)
		if err != nil {
			return nil, r.fail(ctx, err)
		}
		defer release()
	}

	items, err := retry.Call(ctx, retrier, "list forums", func(ctx context.Context) ([]domain.Item, error) {
		return r.remote.ListForums(ctx, bduss)
	})
	if err != nil {
		return nil, r.fail(ctx, fmt.Errorf("failed to list forums: %w", err))
	}
	r.log.Info("Fetched followed forums", "count", len(items))

	tbs, err := retry.Call(ctx, retrier, "fetch tbs", func(ctx context.Context) (string, error) {
		return r.remote.FetchTBS(ctx, bduss)
	})
	if err != nil {
		return nil, r.fail(ctx, &TokenError{Err: err})
	}

	opts := []engine.Option{engine.WithLogger(r.log)}
	if r.wait != nil {
		opts = append(opts, engine.WithWaiter(r.wait))
	}
	eng := engine.New(r.cfg.Signing, func(ctx context.Context, item domain.Item) ([]byte, error) {
		return r.remote.Sign(ctx, bduss, item.Name, tbs)
	}, retrier, opts...)

	records, err := eng.Run(ctx, items)
	if err != nil {
		return nil, r.fail(ctx, fmt.Errorf("sign-in interrupted: %w", err))
	}

	sum := summary.Aggregate(records)
	report := &Report{
		RunID:      runID,
		UserID:     identity.UserID,
		StartedAt:  started,
		FinishedAt: r.now(),
		Records:    records,
		Summary:    sum,
		Text:       sum.Render(),
	}

	r.log.Info("Sign-in finished",
		"total", sum.Total, "success", sum.Success, "already", sum.AlreadyDone,
		"failed", sum.Failed, "retried", sum.Retried, "duration", report.Duration())
	for _, rc := range sum.Reasons {
		r.log.Warn("Failure reason", "reason", rc.Reason, "count", rc.Count)
	}

	r.record(report)
	r.store(ctx, report)
	r.push(identity.UserID)

	if r.cfg.Notify.Enabled && (sum.Failed > 0 || r.cfg.Notify.Always) {
		r.notifier.Notify(ctx, notify.Message{
			Title:   notify.Title(report.FinishedAt),
			Content: fmt.Sprintf("%s\n\n⏱ Execution time: %.1fs", report.Text, report.Duration().Seconds()),
		})
	}
	return report, nil
}

// fail logs and reports a fatal error, then returns it.
func (r *Runner) fail(ctx context.Context, err error) error {
	r.log.Error("Sign-in aborted", "error", err)
	metrics.RunsTotal.WithLabelValues("failed").Inc()
	r.push("")

	if r.cfg.Notify.Enabled || IsCredentialError(err) {
		content := fmt.Sprintf("❌ Sign-in failed\n\nError: %v", err)
		if IsCredentialError(err) {
			content += "\n\nThe BDUSS cookie looks invalid or expired, please update it."
		}
		// The run context may be cancelled already.
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		r.notifier.Notify(nctx, notify.Message{Title: notify.Title(r.now()), Content: content})
	}
	return err
}

// authFailure wraps rejections of the credential as AuthError. Server and
// network errors stay plain fatal errors.
func authFailure(err error) error {
	var apiErr *tieba.APIError
	if errors.As(err, &apiErr) {
		return &AuthError{Err: err}
	}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) && sc.StatusCode() >= 400 && sc.StatusCode() < 500 && sc.StatusCode() != 429 {
		return &AuthError{Err: err}
	}
	return fmt.Errorf("failed to authenticate: %w", err)
}

func (r *Runner) lock(ctx context.Context, account, runID string) (func(), error) {
	ok, err := r.archive.AcquireLock(ctx, account, runID, r.cfg.LockTTL)
	if err != nil {
		r.log.Warn("Failed to acquire run lock, continuing without it", "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		// The run context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.archive.ReleaseLock(ctx, account, runID); err != nil {
			r.log.Warn("Failed to release run lock", "error", err)
		}
	}, nil
}

func (r *Runner) record(report *Report) {
	sum := report.Summary
	metrics.RunItems.WithLabelValues("success").Set(float64(sum.Success))
	metrics.RunItems.WithLabelValues("already_done").Set(float64(sum.AlreadyDone))
	metrics.RunItems.WithLabelValues("failed").Set(float64(sum.Failed))
	metrics.RunsTotal.WithLabelValues("completed").Inc()
	metrics.LastRunTimestamp.Set(float64(report.FinishedAt.Unix()))
}

func (r *Runner) store(ctx context.Context, report *Report) {
	if r.archive == nil {
		return
	}
	sum := report.Summary
	err := r.archive.ArchiveReport(ctx, report.UserID, redisclient.Report{
		RunID:       report.RunID,
		UserID:      report.UserID,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		Total:       sum.Total,
		Success:     sum.Success,
		AlreadyDone: sum.AlreadyDone,
		Failed:      sum.Failed,
		Text:        report.Text,
	}, r.cfg.HistorySize, r.cfg.HistoryTTL)
	if err != nil {
		r.log.Warn("Failed to archive report", "error", err)
	}
}

func (r *Runner) push(instance string) {
	if r.cfg.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(r.cfg.PushgatewayURL, r.cfg.MetricsJob, instance); err != nil {
		r.log.Warn("Failed to push metrics", "error", err)
	}
}

// observeRetry counts transport retries by operation kind. Forum names are
// dropped from the label to keep cardinality flat.
func observeRetry(ev retry.Event) {
	op, _, _ := strings.Cut(ev.Operation, " ")
	if strings.HasPrefix(ev.Operation, "list ") || strings.HasPrefix(ev.Operation, "fetch ") {
		op = ev.Operation
	}
	metrics.TransportRetries.WithLabelValues(op, ev.Action.String()).Inc()
}
