package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/tiebasign/internal/signing/engine"
	"github.com/vietddude/tiebasign/internal/signing/retry"
)

// Default returns the configuration used when nothing is set.
func Default() *AppConfig {
	return &AppConfig{
		Signing:   engine.DefaultConfig(),
		Transport: retry.DefaultConfig,
		Metrics:   MetricsConfig{Job: "tiebasign"},
		Schedule:  ScheduleConfig{Cron: "0 5 * * *", Timezone: "Asia/Shanghai"},
		Server:    ServerConfig{Port: 8080},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file, then applies environment
// overrides. A missing file is not an error: the tool can run on env alone.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *AppConfig) Validate() error {
	switch {
	case c.Signing.BatchSize <= 0:
		return errors.New("signing.batch_size must be > 0")
	case c.Signing.BatchInterval < 0:
		return errors.New("signing.batch_interval must be >= 0")
	case c.Signing.MaxRetries < 0:
		return errors.New("signing.max_retries must be >= 0")
	case c.Signing.RetryInterval < 0:
		return errors.New("signing.retry_interval must be >= 0")
	case c.Transport.MaxRetries < 0:
		return errors.New("transport.max_retries must be >= 0")
	case c.Transport.BaseDelay < 0:
		return errors.New("transport.base_delay must be >= 0")
	case c.Transport.Multiplier < 1:
		return errors.New("transport.multiplier must be >= 1")
	}
	return nil
}

// applyEnv maps the environment variables the tool has always accepted onto cfg.
func applyEnv(cfg *AppConfig) error {
	setString(&cfg.Account.BDUSS, "BDUSS")

	if err := setInt(&cfg.Signing.BatchSize, "BATCH_SIZE"); err != nil {
		return err
	}
	if err := setMillis(&cfg.Signing.BatchInterval, "BATCH_INTERVAL"); err != nil {
		return err
	}
	if err := setInt(&cfg.Signing.MaxRetries, "MAX_RETRIES"); err != nil {
		return err
	}
	if err := setMillis(&cfg.Signing.RetryInterval, "RETRY_INTERVAL"); err != nil {
		return err
	}
	if err := setBool(&cfg.Notify.Enabled, "ENABLE_NOTIFY"); err != nil {
		return err
	}

	setString(&cfg.Notify.ServerChanKey, "SERVERCHAN_KEY")
	setString(&cfg.Notify.BarkKey, "BARK_KEY")
	setString(&cfg.Notify.TelegramToken, "TG_BOT_TOKEN")
	setString(&cfg.Notify.TelegramChatID, "TG_CHAT_ID")
	setString(&cfg.Notify.DingTalkWebhook, "DINGTALK_WEBHOOK")
	setString(&cfg.Notify.DingTalkSecret, "DINGTALK_SECRET")
	setString(&cfg.Notify.WeComKey, "WECOM_KEY")
	setString(&cfg.Notify.PushPlusToken, "PUSHPLUS_TOKEN")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Metrics.PushgatewayURL, "PUSHGATEWAY_URL")
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setMillis(dst *time.Duration, key string) error {
	var ms int
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	if err := setInt(&ms, key); err != nil {
		return err
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
