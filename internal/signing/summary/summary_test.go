package summary

import (
	"fmt"
	"testing"

	"github.com/vietddude/tiebasign/internal/core/domain"
)

func rec(i int, o domain.Outcome) domain.ResultRecord {
	return domain.ResultRecord{Item: domain.Item{Index: i, ID: fmt.Sprint(i)}, Outcome: o}
}

func TestAggregate(t *testing.T) {
	records := []domain.ResultRecord{
		rec(1, domain.Success(1, 1)),
		rec(2, domain.AlreadyDone()),
		rec(3, domain.PermanentFailure(1011, "not a member or level too low")),
		rec(4, domain.TransientFailure("http 502")),
		rec(5, domain.PermanentFailure(1011, "not a member or level too low")),
		rec(6, domain.RateLimited()),
		{Item: domain.Item{Index: 7, ID: "7"}, Outcome: domain.Success(0, 0), Retried: true, RetryRound: 1},
	}

	s := Aggregate(records)
	if s.Total != 7 || s.Success != 2 || s.AlreadyDone != 1 || s.Failed != 4 || s.Retried != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.Total != s.Success+s.AlreadyDone+s.Failed {
		t.Errorf("totals do not add up: %+v", s)
	}

	want := []ReasonCount{
		{"not a member or level too low", 2},
		{"http 502", 1},
		{domain.ReasonRateLimited, 1},
	}
	if len(s.Reasons) != len(want) {
		t.Fatalf("reasons = %v, want %v", s.Reasons, want)
	}
	for i := range want {
		if s.Reasons[i] != want[i] {
			t.Errorf("reason %d = %v, want %v", i, s.Reasons[i], want[i])
		}
	}
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil)
	if s.Total != 0 || s.Failed != 0 || len(s.Reasons) != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestRender_NoFailures(t *testing.T) {
	s := Summary{Total: 25, Success: 23, AlreadyDone: 2}
	want := "📊 Sign-in summary:\n" +
		"Total: 25 forums\n" +
		"✅ Success: 23\n" +
		"📌 Already signed: 2\n" +
		"❌ Failed: 0"
	if got := s.Render(); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRender_WithFailures(t *testing.T) {
	s := Aggregate([]domain.ResultRecord{
		rec(1, domain.PermanentFailure(2150040, "requires verification")),
		rec(2, domain.TransientFailure("timeout")),
		rec(3, domain.PermanentFailure(2150040, "requires verification")),
	})
	want := "📊 Sign-in summary:\n" +
		"Total: 3 forums\n" +
		"✅ Success: 0\n" +
		"📌 Already signed: 0\n" +
		"❌ Failed: 3\n" +
		"\n" +
		"❌ Failure reasons:\n" +
		"- requires verification: 2\n" +
		"- timeout: 1\n"
	if got := s.Render(); got != want {
		t.Errorf("Render() =\n%q\nwant\n%q", got, want)
	}
}
