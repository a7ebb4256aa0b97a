package scheduler

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func TestNextRun(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatal(err)
	}
	newYork, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	utc := func(y int, m time.Month, d, h, min int) time.Time { return time.Date(y, m, d, h, min, 0, 0, time.UTC) }

	tests := []struct {
		name         string
		now          time.Time
		hour, minute int
		loc          *time.Location
		want         time.Time
	}{
		{"later today", utc(2025, 12, 26, 2, 0), 3, 0, time.UTC, utc(2025, 12, 26, 3, 0)},
		{"already passed", utc(2025, 12, 26, 4, 0), 3, 0, time.UTC, utc(2025, 12, 27, 3, 0)},
		{"exactly now", utc(2025, 12, 26, 3, 0), 3, 0, time.UTC, utc(2025, 12, 27, 3, 0)},
		{"month rollover", utc(2025, 12, 31, 23, 0), 3, 0, time.UTC, utc(2026, 1, 1, 3, 0)},
		{"local zone ahead of utc", utc(2025, 12, 26, 1, 30), 3, 0, berlin, utc(2025, 12, 26, 2, 0)},
		{"local date differs from utc", utc(2025, 12, 26, 23, 30), 3, 0, berlin, utc(2025, 12, 27, 2, 0)},
		{"spring forward", utc(2025, 3, 8, 12, 0), 3, 0, newYork, utc(2025, 3, 9, 7, 0)},
		{"fall back", utc(2025, 11, 1, 12, 0), 3, 0, newYork, utc(2025, 11, 2, 8, 0)},
		{"nil location is utc", utc(2025, 12, 26, 2, 0), 3, 15, nil, utc(2025, 12, 26, 3, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.now, tt.hour, tt.minute, tt.loc)
			if !got.Equal(tt.want) {
				t.Errorf("NextRun = %v, want %v", got.UTC(), tt.want)
			}
		})
	}
}
