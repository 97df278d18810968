package cli

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/tiebasign/internal/control"
	"github.com/vietddude/tiebasign/internal/core/config"
	redisclient "github.com/vietddude/tiebasign/internal/infra/redis"
	"github.com/vietddude/tiebasign/internal/infra/tieba"
	"github.com/vietddude/tiebasign/internal/notify"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "tiebasign",
	Short: "Tieba daily sign-in",
	Long: `tiebasign signs in to every forum followed by a Baidu Tieba account,
retrying failures in rounds and reporting the result to notification channels.`,
	SilenceUsage: true,
	RunE:         runOnce,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(control.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// setup loads .env and the config file, then initialises logging.
func setup() (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		return nil, err
	}

	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg, nil
}

// newRunner wires the runner from config. The returned func closes Redis.
func newRunner(cfg *config.AppConfig) (*control.Runner, func()) {
	remote := tieba.NewClient(cfg.Tieba)
	dispatcher := notify.NewDispatcher(notify.Channels(cfg.Notify, &http.Client{Timeout: 15 * time.Second})...)

	runnerCfg := control.Config{
		BDUSS:          cfg.Account.BDUSS,
		Signing:        cfg.Signing,
		Transport:      cfg.Transport,
		Notify:         cfg.Notify,
		LockTTL:        cfg.Redis.LockTTL,
		HistorySize:    cfg.Redis.HistorySize,
		HistoryTTL:     cfg.Redis.HistoryTTL,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		MetricsJob:     cfg.Metrics.Job,
	}

	var opts []control.Option
	cleanup := func() {}
	if rc := openRedis(cfg.Redis); rc != nil {
		opts = append(opts, control.WithArchive(rc))
		cleanup = func() {
			if err := rc.Close(); err != nil {
				slog.Warn("Failed to close Redis", "error", err)
			}
		}
	}
	return control.NewRunner(runnerCfg, remote, dispatcher, opts...), cleanup
}

// openRedis connects when a URL is configured. Redis is optional, so a
// failed connection only disables the lock and archive.
func openRedis(cfg redisclient.Config) *redisclient.Client {
	if cfg.URL == "" {
		return nil
	}
	rc, err := redisclient.NewClient(cfg)
	if err != nil {
		slog.Warn("Failed to connect to Redis, run lock and history disabled", "error", err)
		return nil
	}
	return rc
}
