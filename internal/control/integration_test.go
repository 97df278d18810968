package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/tiebasign/internal/infra/tieba"
	"github.com/vietddude/tiebasign/internal/notify"
	"github.com/vietddude/tiebasign/internal/signing/engine"
	"github.com/vietddude/tiebasign/internal/signing/retry"
)

// tiebaServer imitates the four endpoints a run touches.
type tiebaServer struct {
	mu      sync.Mutex
	calls   map[string]int
	listing string
}

func (s *tiebaServer) count(kw string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kw]
}

func (s *tiebaServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Cookie") != "BDUSS=cookie" {
		_, _ = w.Write([]byte(`{"no":1,"error":"not login"}`))
		return
	}

	switch r.URL.Path {
	case "/mo/q/sync":
		_, _ = w.Write([]byte(`{"no":0,"error":"success","data":{"user_id":10086}}`))
	case "/mo/q/newmoindex":
		if s.listing != "" {
			_, _ = w.Write([]byte(s.listing))
			return
		}
		_, _ = w.Write([]byte(`{"error":"success","data":{"like_forum":[
			{"forum_id":1,"forum_name":"golang","is_sign":0,"user_level":9},
			{"forum_id":2,"forum_name":"flaky","is_sign":0,"user_level":4},
			{"forum_id":3,"forum_name":"done","is_sign":1,"user_level":2},
			{"forum_id":4,"forum_name":"closed","is_sign":0,"user_level":1}
		]}}`))
	case "/dc/common/tbs":
		_, _ = w.Write([]byte(`{"tbs":"abc","is_login":1}`))
	case "/sign/add":
		_ = r.ParseForm()
		kw := r.PostForm.Get("kw")
		s.mu.Lock()
		s.calls[kw]++
		n := s.calls[kw]
		s.mu.Unlock()

		switch {
		case r.PostForm.Get("tbs") != "abc":
			_, _ = w.Write([]byte(`{"no":1990055,"error":"bad tbs"}`))
		case kw == "flaky" && n == 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case kw == "closed":
			_, _ = w.Write([]byte(`{"no":1010,"error":"directory error"}`))
		default:
			_, _ = w.Write([]byte(signedOK))
		}
	default:
		http.NotFound(w, r)
	}
}

func TestRunner_AgainstHTTPServer(t *testing.T) {
	remote := &tiebaServer{calls: make(map[string]int)}
	api := httptest.NewServer(remote)
	defer api.Close()

	var (
		mu     sync.Mutex
		pushed []string
	)
	bark := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pushed = append(pushed, r.URL.EscapedPath())
		mu.Unlock()
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer bark.Close()

	sig := engine.DefaultConfig()
	sig.MaxRetries = 2
	cfg := Config{
		BDUSS:     "cookie",
		Signing:   sig,
		Transport: retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 2, RateLimitFactor: 2},
		Notify:    notify.Config{Enabled: true, BarkKey: bark.URL},
	}
	dispatcher := notify.NewDispatcher(notify.Channels(cfg.Notify, bark.Client())...)
	client := tieba.NewClient(tieba.Config{BaseURL: api.URL, Timeout: 5 * time.Second})

	report, err := newTestRunner(cfg, client, dispatcher).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	s := report.Summary
	if s.Total != 4 || s.Success != 2 || s.AlreadyDone != 1 || s.Failed != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.ReasonCount("invalid forum") != 1 {
		t.Errorf("unexpected reasons: %+v", s.Reasons)
	}
	// The 429 is absorbed by the transport retrier, not by a retry round.
	if remote.count("flaky") != 2 || s.Retried != 0 {
		t.Errorf("flaky calls = %d, retried = %d", remote.count("flaky"), s.Retried)
	}
	if remote.count("closed") != 3 || remote.count("done") != 0 {
		t.Errorf("closed calls = %d, done calls = %d", remote.count("closed"), remote.count("done"))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(pushed) != 1 {
		t.Fatalf("expected one bark push, got %d", len(pushed))
	}
	decoded, _ := url.PathUnescape(pushed[0])
	if !strings.Contains(decoded, "invalid forum: 1") {
		t.Errorf("push should carry the failure breakdown, got %q", decoded)
	}
}

func TestRunner_RejectedCookie(t *testing.T) {
	api := httptest.NewServer(&tiebaServer{calls: make(map[string]int)})
	defer api.Close()

	cfg := testConfig()
	cfg.BDUSS = "expired"
	n := &fakeNotifier{}

	_, err := newTestRunner(cfg, tieba.NewClient(tieba.Config{BaseURL: api.URL}), n).Run(context.Background())
	if !IsCredentialError(err) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if len(n.messages) != 1 || !strings.Contains(n.messages[0].Content, "BDUSS") {
		t.Errorf("unexpected notifications: %+v", n.messages)
	}
}

func TestRunner_ListingWithoutForumIDs(t *testing.T) {
	remote := &tiebaServer{
		calls: make(map[string]int),
		listing: `{"error":"success","data":{"like_forum":[
			{"forum_name":"golang","is_sign":0},
			{"forum_name":"rust","is_sign":0},
			{"forum_name":"done","is_sign":1}
		]}}`,
	}
	api := httptest.NewServer(remote)
	defer api.Close()

	client := tieba.NewClient(tieba.Config{BaseURL: api.URL})
	report, err := newTestRunner(testConfig(), client, &fakeNotifier{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	s := report.Summary
	if s.Total != 3 || s.Success != 2 || s.AlreadyDone != 1 || s.Failed != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}
}
