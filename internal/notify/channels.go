package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ServerChan pushes through sctapi.ftqq.com.
type ServerChan struct {
	client   *http.Client
	endpoint string
}

func NewServerChan(client *http.Client, key string) *ServerChan {
	return &ServerChan{client: client, endpoint: fmt.Sprintf("https://sctapi.ftqq.com/%s.send", key)}
}

func (s *ServerChan) Name() string { return "serverchan" }

func (s *ServerChan) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, s.client, s.endpoint, map[string]string{
		"title": msg.Title,
		"desp":  msg.Content,
	})
}

// Bark pushes to api.day.app or a self-hosted Bark server. The key may be a
// bare device key or a full server URL.
type Bark struct {
	client *http.Client
	base   string
}

func NewBark(client *http.Client, key string) *Bark {
	base := key
	if !strings.HasPrefix(base, "http") {
		base = "https://api.day.app/" + key
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Bark{client: client, base: base}
}

func (b *Bark) Name() string { return "bark" }

func (b *Bark) Send(ctx context.Context, msg Message) error {
	u := b.base + url.PathEscape(msg.Title) + "/" + url.PathEscape(msg.Content)
	return get(ctx, b.client, u)
}

// Telegram pushes through a bot.
type Telegram struct {
	client   *http.Client
	endpoint string
	chatID   string
}

func NewTelegram(client *http.Client, token, chatID string) *Telegram {
	return &Telegram{
		client:   client,
		endpoint: fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", token),
		chatID:   chatID,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, t.client, t.endpoint, map[string]string{
		"chat_id":    t.chatID,
		"text":       msg.Title + "\n\n" + msg.Content,
		"parse_mode": "Markdown",
	})
}

// DingTalk pushes to a robot webhook, signing the request when a secret is set.
type DingTalk struct {
	client  *http.Client
	webhook string
	secret  string
	now     func() time.Time
}

func NewDingTalk(client *http.Client, webhook, secret string) *DingTalk {
	return &DingTalk{client: client, webhook: webhook, secret: secret, now: time.Now}
}

func (d *DingTalk) Name() string { return "dingtalk" }

func (d *DingTalk) Send(ctx context.Context, msg Message) error {
	target := d.webhook
	if d.secret != "" {
		ts := strconv.FormatInt(d.now().UnixMilli(), 10)
		sep := "&"
		if !strings.Contains(target, "?") {
			sep = "?"
		}
		target += sep + "timestamp=" + ts + "&sign=" + url.QueryEscape(dingTalkSign(ts, d.secret))
	}

	title := msg.Title
	if title == "" {
		title = "Notification"
	}
	return postJSON(ctx, d.client, target, map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title,
			"text":  "### " + title + "\n" + msg.Content,
		},
	})
}

// dingTalkSign is base64(HMAC-SHA256(secret, timestamp + "\n" + secret)).
func dingTalkSign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// WeCom pushes to a WeChat Work group robot.
type WeCom struct {
	client   *http.Client
	endpoint string
}

func NewWeCom(client *http.Client, key string) *WeCom {
	return &WeCom{
		client:   client,
		endpoint: "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=" + url.QueryEscape(key),
	}
}

func (w *WeCom) Name() string { return "wecom" }

func (w *WeCom) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, w.client, w.endpoint, map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"content": "### " + msg.Title + "\n" + msg.Content,
		},
	})
}

// PushPlus pushes through pushplus.plus.
type PushPlus struct {
	client   *http.Client
	endpoint string
	token    string
}

func NewPushPlus(client *http.Client, token string) *PushPlus {
	return &PushPlus{client: client, endpoint: "https://www.pushplus.plus/send", token: token}
}

func (p *PushPlus) Name() string { return "pushplus" }

func (p *PushPlus) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, p.client, p.endpoint, map[string]string{
		"token":    p.token,
		"title":    msg.Title,
		"content":  msg.Content,
		"template": "markdown",
	})
}
