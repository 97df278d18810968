// Package summary reduces a result snapshot into counts and renders the
// report sent to notification channels.
package summary

import (
	"fmt"
	"strings"

	"github.com/vietddude/tiebasign/internal/core/domain"
)

// ReasonCount is one entry of the failure-reason histogram.
type ReasonCount struct {
	Reason string
	Count  int
}

// Summary is derived from a snapshot and never updated in place.
type Summary struct {
	Total       int
	Success     int
	AlreadyDone int
	Failed      int
	Retried     int
	// Reasons lists failure reasons in order of first appearance.
	Reasons []ReasonCount
}

// Aggregate computes a Summary from scratch.
func Aggregate(records []domain.ResultRecord) Summary {
	s := Summary{Total: len(records)}
	index := make(map[string]int)

	for _, r := range records {
		if r.Retried {
			s.Retried++
		}
		switch r.Outcome.Category {
		case domain.CategorySuccess:
			s.Success++
		case domain.CategoryAlreadyDone:
			s.AlreadyDone++
		default:
			s.Failed++
			reason := r.Outcome.Reason
			if reason == "" {
				reason = string(r.Outcome.Category)
			}
			if i, ok := index[reason]; ok {
				s.Reasons[i].Count++
			} else {
				index[reason] = len(s.Reasons)
				s.Reasons = append(s.Reasons, ReasonCount{Reason: reason, Count: 1})
			}
		}
	}
	return s
}

// ReasonCount returns how often reason occurred among failures.
func (s Summary) ReasonCount(reason string) int {
	for _, rc := range s.Reasons {
		if rc.Reason == reason {
			return rc.Count
		}
	}
	return 0
}

// Render formats the summary as the multi-line report.
func (s Summary) Render() string {
	var b strings.Builder
	b.WriteString("📊 Sign-in summary:\n")
	fmt.Fprintf(&b, "Total: %d forums\n", s.Total)
	fmt.Fprintf(&b, "✅ Success: %d\n", s.Success)
	fmt.Fprintf(&b, "📌 Already signed: %d\n", s.AlreadyDone)
	fmt.Fprintf(&b, "❌ Failed: %d", s.Failed)

	if s.Failed > 0 {
		b.WriteString("\n\n❌ Failure reasons:\n")
		for _, rc := range s.Reasons {
			fmt.Fprintf(&b, "- %s: %d\n", rc.Reason, rc.Count)
		}
	}
	return b.String()
}
