package domain

import "testing"

func TestMaskName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "unknown"},
		{"one rune", "a", "a*"},
		{"two runes", "李白", "李*"},
		{"short", "golang", "go***g"},
		{"five runes", "abcde", "a***e"},
		{"three runes cjk", "三国志", "三*志"},
		{"long cjk", "英雄联盟手游", "英雄***游"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskName(tt.in); got != tt.want {
				t.Errorf("MaskName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCategorySucceeded(t *testing.T) {
	succeeded := map[Category]bool{
		CategorySuccess:          true,
		CategoryAlreadyDone:      true,
		CategoryRateLimited:      false,
		CategoryPermanentFailure: false,
		CategoryTransientFailure: false,
		CategoryError:            false,
	}
	for c, want := range succeeded {
		if got := c.Succeeded(); got != want {
			t.Errorf("%s.Succeeded() = %v, want %v", c, got, want)
		}
	}
}
