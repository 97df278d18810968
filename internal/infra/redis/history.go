package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Report is an archived run summary.
type Report struct {
	RunID       string    `json:"run_id"`
	UserID      string    `json:"user_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Total       int       `json:"total"`
	Success     int       `json:"success"`
	AlreadyDone int       `json:"already_done"`
	Failed      int       `json:"failed"`
	Text        string    `json:"text"`
}

// ArchiveReport pushes a report onto the account history, keeping the newest `keep` entries.
func (c *Client) ArchiveReport(ctx context.Context, account string, r Report, keep int, ttl time.Duration) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if keep <= 0 {
		keep = 30
	}

	key := historyKey(c.prefix, account)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(keep-1))
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to archive report: %w", err)
	}
	return nil
}

// RecentReports returns up to n archived reports, newest first.
func (c *Client) RecentReports(ctx context.Context, account string, n int) ([]Report, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := c.rdb.LRange(ctx, historyKey(c.prefix, account), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	reports := make([]Report, 0, len(raw))
	for _, item := range raw {
		var r Report
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}
