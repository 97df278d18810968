package config

import (
	redisclient "github.com/vietddude/tiebasign/internal/infra/redis"
	"github.com/vietddude/tiebasign/internal/infra/tieba"
	"github.com/vietddude/tiebasign/internal/notify"
	"github.com/vietddude/tiebasign/internal/signing/engine"
	"github.com/vietddude/tiebasign/internal/signing/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Account   AccountConfig      `yaml:"account"`
	Signing   engine.Config      `yaml:"signing"`
	Transport retry.Config       `yaml:"transport"`
	Tieba     tieba.Config       `yaml:"tieba"`
	Notify    notify.Config      `yaml:"notify"`
	Redis     redisclient.Config `yaml:"redis"`
	Metrics   MetricsConfig      `yaml:"metrics"`
	Schedule  ScheduleConfig     `yaml:"schedule"`
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// AccountConfig holds the credential.
type AccountConfig struct {
	BDUSS string `yaml:"bduss"`
}

// MetricsConfig holds Pushgateway settings. Empty URL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// ScheduleConfig controls the serve command.
type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
