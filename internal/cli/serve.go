package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/tiebasign/internal/control"
	"github.com/vietddude/tiebasign/internal/health"
)

var runOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run sign-in on a cron schedule with health and metrics endpoints",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&runOnStart, "now", false, "run once immediately after start")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if cfg.Account.BDUSS == "" {
		return control.ErrMissingCredential
	}

	runner, cleanup := newRunner(cfg)
	defer cleanup()

	monitor := health.NewMonitor(48 * time.Hour)
	scheduler, err := control.NewScheduler(control.ScheduleConfig{
		Cron:       cfg.Schedule.Cron,
		Timezone:   cfg.Schedule.Timezone,
		RunOnStart: runOnStart,
	}, runner, monitor, health.NewServer(monitor, cfg.Server.Port))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	slog.Info("Serving", "port", cfg.Server.Port, "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	return scheduler.Stop(shutdownCtx)
}
