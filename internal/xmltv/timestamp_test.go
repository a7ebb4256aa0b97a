package xmltv

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"20251226120000 +0000", time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)},
		{"20251226120000 +0100", time.Date(2025, 12, 26, 11, 0, 0, 0, time.UTC)},
		{"20251226003000 -0530", time.Date(2025, 12, 26, 6, 0, 0, 0, time.UTC)},
		{"20250101003000 +0100", time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC)},
		{"20251226120000", time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)},
		{"202512261200 +0000", time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)},
		{"  20251226120000 +0000 ", time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) error: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) || got.Location() != time.UTC {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestampRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"2025-12-26T12:00:00Z",
		"20251326120000 +0000",
		"20251226250000 +0000",
		"20251226120000 0100",
		"20251226120000 +01",
		"20251226120000 +0160",
	} {
		if _, err := ParseTimestamp(in); err == nil {
			t.Errorf("ParseTimestamp(%q) succeeded, want error", in)
		}
	}
}
