package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vietddude/tiebasign/internal/health"
)

// Job is one scheduled unit of work. *Runner satisfies it.
type Job interface {
	Run(ctx context.Context) (*Report, error)
}

// ScheduleConfig controls when runs fire.
type ScheduleConfig struct {
	Cron       string
	Timezone   string
	RunOnStart bool
}

// Scheduler fires runs on a cron schedule and serves their health.
type Scheduler struct {
	cfg      ScheduleConfig
	job      Job
	cron     *cron.Cron
	schedule cron.Schedule
	loc      *time.Location
	monitor  *health.Monitor
	server   *health.Server
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// held for the duration of a run; cron fires and --now share it
	runMu sync.Mutex
}

// NewScheduler parses the schedule. server may be nil.
func NewScheduler(cfg ScheduleConfig, job Job, monitor *health.Monitor, server *health.Server) (*Scheduler, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.Cron, err)
	}

	s := &Scheduler{
		cfg:      cfg,
		job:      job,
		schedule: schedule,
		loc:      loc,
		monitor:  monitor,
		server:   server,
		log:      slog.Default(),
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return s, nil
}

// Next returns the next fire time after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from.In(s.loc))
}

// Start begins serving and scheduling. It does not block.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if s.server != nil {
		go func() {
			if err := s.server.Start(); err != nil {
				s.log.Error("Health server stopped", "error", err)
			}
		}()
	}

	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.Trigger(ctx) }))
	s.cron.Start()
	s.monitor.SetNextRun(s.Next(time.Now()))
	s.log.Info("Scheduler started",
		"cron", s.cfg.Cron, "timezone", s.loc.String(), "next", s.Next(time.Now()).Format(time.RFC3339))

	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Trigger(ctx)
		}()
	}
	return nil
}

// Trigger runs the job once and records the result. It returns without
// running when another run is still in progress.
func (s *Scheduler) Trigger(ctx context.Context) {
	if !s.runMu.TryLock() {
		s.log.Warn("Previous run still in progress, skipping")
		return
	}
	defer s.runMu.Unlock()

	s.monitor.RunStarted()
	report, err := s.job.Run(ctx)

	failed := 0
	if report != nil {
		failed = report.Summary.Failed
	}
	now := time.Now()
	s.monitor.RunFinished(now, failed, err)
	s.monitor.SetNextRun(s.Next(now))

	if err != nil {
		s.log.Error("Scheduled run failed", "error", err)
		return
	}
	s.log.Info("Scheduled run finished", "failed", failed, "next", s.Next(now).Format(time.RFC3339))
}

// Stop waits for a running job to finish, bounded by ctx, then stops the server.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.log.Info("Stopping scheduler...")

	cronCtx := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		s.log.Warn("Shutdown timeout, cancelling the running job")
	}

	if s.server != nil {
		if err := s.server.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop health server: %w", err)
		}
	}
	return nil
}
