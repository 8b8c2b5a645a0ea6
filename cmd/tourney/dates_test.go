package main

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-07-04T18:00:00Z", time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC)},
		{"2026-07-04 18:30", time.Date(2026, 7, 4, 18, 30, 0, 0, time.UTC)},
		{"2026-07-04", time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)},
		{"in 2 hours", base.Add(2 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in, base)
			if err != nil {
				t.Fatalf("parseDate(%q) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseDate(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate_Rejects(t *testing.T) {
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, in := range []string{"", "   ", "qwzx"} {
		if _, err := parseDate(in, base); err == nil {
			t.Errorf("parseDate(%q) should fail", in)
		}
	}
}
