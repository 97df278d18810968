package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeChannel struct {
	name string
	err  error
	sent []Message
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, msg Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestDispatcher_AnySuccess(t *testing.T) {
	bad := &fakeChannel{name: "bad", err: errors.New("boom")}
	good := &fakeChannel{name: "good"}

	d := NewDispatcher(bad, good)
	if !d.Notify(context.Background(), Message{Title: "t", Content: "c"}) {
		t.Fatal("expected delivery when one channel succeeds")
	}
	if len(bad.sent) != 1 || len(good.sent) != 1 {
		t.Errorf("every channel should be attempted: bad=%d good=%d", len(bad.sent), len(good.sent))
	}
}

func TestDispatcher_NoneDelivered(t *testing.T) {
	d := NewDispatcher(&fakeChannel{name: "bad", err: errors.New("boom")})
	if d.Notify(context.Background(), Message{}) {
		t.Fatal("expected no delivery")
	}
	if NewDispatcher().Notify(context.Background(), Message{}) {
		t.Fatal("expected no delivery without channels")
	}
}

func TestChannels_FromConfig(t *testing.T) {
	cfg := Config{
		ServerChanKey:   "sc",
		BarkKey:         "bark",
		TelegramToken:   "token", // chat id missing, skipped
		DingTalkWebhook: "https://oapi.dingtalk.com/robot/send?access_token=x",
		PushPlusToken:   "pp",
	}

	var names []string
	for _, ch := range Channels(cfg, nil) {
		names = append(names, ch.Name())
	}
	want := []string{"serverchan", "bark", "dingtalk", "pushplus"}
	if len(names) != len(want) {
		t.Fatalf("channels = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("channel %d = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestBark_URL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
	}))
	defer srv.Close()

	b := NewBark(srv.Client(), srv.URL+"/devicekey")
	if err := b.Send(context.Background(), Message{Title: "Daily report", Content: "ok/fine"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotPath != "/devicekey/Daily%20report/ok%2Ffine" {
		t.Errorf("path = %s", gotPath)
	}

	if NewBark(nil, "abc").base != "https://api.day.app/abc/" {
		t.Errorf("bare key should use the public server")
	}
}

func TestDingTalk_SignedRequest(t *testing.T) {
	var query map[string]string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{
			"access_token": r.URL.Query().Get("access_token"),
			"timestamp":    r.URL.Query().Get("timestamp"),
			"sign":         r.URL.Query().Get("sign"),
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	d := NewDingTalk(srv.Client(), srv.URL+"/robot/send?access_token=abc", "SECsecret")
	d.now = func() time.Time { return time.UnixMilli(1700000000000) }

	if err := d.Send(context.Background(), Message{Title: "T", Content: "body"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("SECsecret"))
	mac.Write([]byte("1700000000000\nSECsecret"))
	wantSign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if query["access_token"] != "abc" || query["timestamp"] != "1700000000000" || query["sign"] != wantSign {
		t.Errorf("unexpected query %v", query)
	}
	if body["msgtype"] != "markdown" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestPostJSON_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPushPlus(srv.Client(), "token")
	p.endpoint = srv.URL
	if err := p.Send(context.Background(), Message{Title: "t", Content: "c"}); err == nil {
		t.Fatal("expected error for 500")
	}
}

func TestTelegram_Payload(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	tg := NewTelegram(srv.Client(), "token", "42")
	tg.endpoint = srv.URL
	if err := tg.Send(context.Background(), Message{Title: "T", Content: "C"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if body["chat_id"] != "42" || body["text"] != "T\n\nC" {
		t.Errorf("unexpected payload %v", body)
	}
}

func TestTitle(t *testing.T) {
	// 2024-01-01 20:00 UTC is already Jan 2 in Beijing.
	now := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	if got := Title(now); got != "Tieba sign-in - 2024-01-02" {
		t.Errorf("Title = %q", got)
	}
}
