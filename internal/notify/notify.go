// Package notify delivers run reports to push channels. Delivery is best
// effort: failures are logged and never change the outcome of a run.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Message is what gets pushed.
type Message struct {
	Title   string
	Content string
}

// Channel is one push destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Config holds channel credentials. A channel is enabled when its key is set.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Always sends the report after a successful run, not only when forums failed.
	Always bool `yaml:"always"`

	ServerChanKey   string `yaml:"serverchan_key"`
	BarkKey         string `yaml:"bark_key"`
	TelegramToken   string `yaml:"telegram_bot_token"`
	TelegramChatID  string `yaml:"telegram_chat_id"`
	DingTalkWebhook string `yaml:"dingtalk_webhook"`
	DingTalkSecret  string `yaml:"dingtalk_secret"`
	WeComKey        string `yaml:"wecom_key"`
	PushPlusToken   string `yaml:"pushplus_token"`
}

// Channels builds the channels enabled in cfg.
func Channels(cfg Config, client *http.Client) []Channel {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	var out []Channel
	if cfg.ServerChanKey != "" {
		out = append(out, NewServerChan(client, cfg.ServerChanKey))
	}
	if cfg.BarkKey != "" {
		out = append(out, NewBark(client, cfg.BarkKey))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		out = append(out, NewTelegram(client, cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DingTalkWebhook != "" {
		out = append(out, NewDingTalk(client, cfg.DingTalkWebhook, cfg.DingTalkSecret))
	}
	if cfg.WeComKey != "" {
		out = append(out, NewWeCom(client, cfg.WeComKey))
	}
	if cfg.PushPlusToken != "" {
		out = append(out, NewPushPlus(client, cfg.PushPlusToken))
	}
	return out
}

// Dispatcher fans a message out to every channel.
type Dispatcher struct {
	channels []Channel
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, log: slog.Default()}
}

// Notify sends msg to all channels and reports whether at least one accepted it.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) bool {
	if len(d.channels) == 0 {
		d.log.Warn("No notification channels configured")
		return false
	}

	delivered := false
	for _, ch := range d.channels {
		if err := ch.Send(ctx, msg); err != nil {
			d.log.Error("Notification failed", "channel", ch.Name(), "error", err)
			continue
		}
		d.log.Info("Notification sent", "channel", ch.Name())
		delivered = true
	}

	if !delivered {
		d.log.Warn("No notification was delivered, check the channel settings")
	}
	return delivered
}

var beijing = time.FixedZone("CST", 8*60*60)

// Title returns the report title for the given time.
func Title(now time.Time) string {
	return "Tieba sign-in - " + now.In(beijing).Format("2006-01-02")
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}

func get(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return do(client, req)
}

func do(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
