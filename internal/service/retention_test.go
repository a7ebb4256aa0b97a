package service

import (
	"context"
	"testing"
	"time"

	"github.com/voyagen/epgvault/internal/models"
)

func TestCleanerWindow(t *testing.T) {
	now := time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)
	c := NewCleaner(nil, 7, 0)
	w := c.Window(now)
	if !w.ProgramsEndBefore.Equal(now.AddDate(0, 0, -7)) || !w.ProgramsStartAfter.Equal(now.AddDate(0, 0, 7)) {
		t.Errorf("program window = %v..%v", w.ProgramsEndBefore, w.ProgramsStartAfter)
	}
	if !w.LogsBefore.Equal(w.ProgramsEndBefore) {
		t.Errorf("log horizon = %v, want program horizon when unset", w.LogsBefore)
	}
	if w = NewCleaner(nil, 7, 30).Window(now); !w.LogsBefore.Equal(now.AddDate(0, 0, -30)) {
		t.Errorf("log horizon = %v", w.LogsBefore)
	}
}

func TestCleanerRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createProvider(t, s, "alpha", "http://alpha/epg.xml")
	ch, err := NewChannelMapper(s).Resolve(ctx, p.ID, "channel1", "Channel One", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	now := time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)
	at := func(days int) models.Program {
		start := now.AddDate(0, 0, days)
		return models.Program{ChannelID: ch, ProviderID: p.ID, StartTime: start, EndTime: start.Add(time.Hour), Title: "p"}
	}
	if _, err := s.InsertPrograms(ctx, []models.Program{at(-9), at(-1), at(0), at(3), at(9)}); err != nil {
		t.Fatalf("InsertPrograms: %v", err)
	}

	c := NewCleaner(s, 7, 30)
	c.now = func() time.Time { return now }
	res, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ProgramsDeleted != 2 {
		t.Errorf("deleted %d programs, want 2", res.ProgramsDeleted)
	}

	w := c.Window(now)
	left, _ := s.ProgramsForChannel(ctx, ch, now.AddDate(0, 0, -30), now.AddDate(0, 0, 30))
	if len(left) != 3 {
		t.Fatalf("remaining = %d, want 3", len(left))
	}
	for _, p := range left {
		if p.EndTime.Before(w.ProgramsEndBefore) || p.StartTime.After(w.ProgramsStartAfter) {
			t.Errorf("program at %v survived outside window", p.StartTime)
		}
	}

	res, err = c.Run(ctx)
	if err != nil || res.ProgramsDeleted != 0 || res.LogsDeleted != 0 {
		t.Errorf("second Run = %+v, %v; want no deletions", res, err)
	}
}
