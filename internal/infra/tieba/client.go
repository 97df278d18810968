// Package tieba implements the remote collaborators the sign-in run needs:
// credential validation, forum listing, tbs token retrieval and the
// single-forum sign-in call.
package tieba

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/tiebasign/internal/core/domain"
)

const (
	DefaultBaseURL = "https://tieba.baidu.com"

	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 Safari/604.1"
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/84.0.4147.135 Safari/537.36 Edg/84.0.522.63"
)

// Config holds client settings.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client talks to the Tieba web endpoints using a BDUSS cookie.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new client. Zero values fall back to the public endpoint and a 30s timeout.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Identity is the account behind a credential.
type Identity struct {
	UserID string
}

// Authenticate validates the BDUSS and returns the account identity.
func (c *Client) Authenticate(ctx context.Context, bduss string) (Identity, error) {
	var resp struct {
		No    int    `json:"no"`
		Error string `json:"error"`
		Data  struct {
			UserID json.Number `json:"user_id"`
		} `json:"data"`
	}

	headers := map[string]string{
		"Accept":     "application/json, text/javascript, */*; q=0.01",
		"Referer":    "https://tieba.baidu.com/home/main",
		"User-Agent": mobileUserAgent,
	}
	if err := c.getJSON(ctx, "/mo/q/sync", bduss, headers, &resp); err != nil {
		return Identity{}, err
	}

	if resp.No != 0 || resp.Error != "success" {
		return Identity{}, &APIError{Op: "authenticate", Code: resp.No, Message: "BDUSS rejected, it may have expired"}
	}

	return Identity{UserID: resp.Data.UserID.String()}, nil
}

// ListForums returns the followed forums in listing order.
func (c *Client) ListForums(ctx context.Context, bduss string) ([]domain.Item, error) {
	var resp struct {
		Error    string `json:"error"`
		ErrorMsg string `json:"error_msg"`
		Data     struct {
			LikeForum []forumInfo `json:"like_forum"`
		} `json:"data"`
	}

	headers := map[string]string{
		"Content-Type": "application/octet-stream",
		"Referer":      "https://tieba.baidu.com/index/tbwise/forum",
		"User-Agent":   mobileUserAgent,
	}
	if err := c.getJSON(ctx, "/mo/q/newmoindex", bduss, headers, &resp); err != nil {
		return nil, err
	}

	if resp.Error != "success" {
		msg := resp.ErrorMsg
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &APIError{Op: "list forums", Code: -1, Message: msg}
	}

	items := make([]domain.Item, 0, len(resp.Data.LikeForum))
	seen := make(map[string]bool, len(resp.Data.LikeForum))
	for i, f := range resp.Data.LikeForum {
		// Results are keyed by ID, so a missing or repeated forum_id falls
		// back to the list position.
		id := f.ForumID.String()
		if id == "" || seen[id] {
			id = "#" + strconv.Itoa(i+1)
		}
		seen[id] = true

		items = append(items, domain.Item{
			Index:       i + 1,
			ID:          id,
			Name:        f.ForumName,
			Level:       f.UserLevel,
			AlreadyDone: f.IsSign == 1,
		})
	}
	return items, nil
}

type forumInfo struct {
	ForumID   json.Number `json:"forum_id"`
	ForumName string      `json:"forum_name"`
	IsSign    int         `json:"is_sign"`
	UserLevel int         `json:"user_level"`
}

// FetchTBS returns the short-lived token required by Sign.
func (c *Client) FetchTBS(ctx context.Context, bduss string) (string, error) {
	var resp struct {
		TBS     string `json:"tbs"`
		IsLogin int    `json:"is_login"`
	}

	headers := map[string]string{"User-Agent": mobileUserAgent}
	if err := c.getJSON(ctx, "/dc/common/tbs", bduss, headers, &resp); err != nil {
		return "", err
	}
	if resp.TBS == "" {
		return "", &APIError{Op: "fetch tbs", Code: -1, Message: "empty tbs"}
	}
	return resp.TBS, nil
}

// Sign signs into a single forum and returns the raw response body for classification.
// It is safe to call more than once for the same forum.
func (c *Client) Sign(ctx context.Context, bduss, forumName, tbs string) (json.RawMessage, error) {
	form := url.Values{}
	form.Set("tbs", tbs)
	form.Set("kw", forumName)
	form.Set("ie", "utf-8")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sign/add", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	setHeaders(req, bduss, map[string]string{
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"Content-Type":     "application/x-www-form-urlencoded; charset=UTF-8",
		"Referer":          "https://tieba.baidu.com/",
		"X-Requested-With": "XMLHttpRequest",
		"User-Agent":       desktopUserAgent,
	})

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return json.RawMessage(body), nil
}

func (c *Client) getJSON(ctx context.Context, path, bduss string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	setHeaders(req, bduss, headers)

	body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Body:       truncate(string(body), 512),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}
	return body, nil
}

func setHeaders(req *http.Request, bduss string, headers map[string]string) {
	req.Header.Set("Cookie", "BDUSS="+bduss)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
