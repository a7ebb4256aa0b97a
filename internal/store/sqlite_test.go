package store

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/voyagen/epgvault/internal/models"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "epg.db")
	version, err := RunMigrations("sqlite://" + path)
	if err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	if version != 2 {
		t.Fatalf("schema version = %d, want 2", version)
	}
	s, err := NewSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func mustProvider(t *testing.T, s Store, name string, enabled bool) int64 {
	t.Helper()
	id, err := s.CreateProvider(context.Background(), &models.Provider{Name: name, URL: "http://" + name + "/epg.xml", Enabled: enabled})
	if err != nil {
		t.Fatalf("CreateProvider(%s): %v", name, err)
	}
	return id
}

func strPtr(s string) *string { return &s }

func TestSQLitePath(t *testing.T) {
	tests := []struct {
		dsn    string
		path   string
		sqlite bool
	}{
		{"sqlite:///var/lib/epg.db", "/var/lib/epg.db", true},
		{"sqlite://data/epg.db", "data/epg.db", true},
		{"sqlite:epg.db", "epg.db", true},
		{"epg.db", "epg.db", true},
		{"postgres://u:p@localhost/epg", "", false},
	}
	for _, tt := range tests {
		path, ok := SQLitePath(tt.dsn)
		if ok != tt.sqlite || path != tt.path {
			t.Errorf("SQLitePath(%q) = %q, %v; want %q, %v", tt.dsn, path, ok, tt.path, tt.sqlite)
		}
	}
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	for i := 0; i < 2; i++ {
		if _, err := RunMigrations("sqlite://" + path); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}

func TestProviderCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	a := mustProvider(t, s, "alpha", true)
	b := mustProvider(t, s, "beta", false)

	if _, err := s.CreateProvider(ctx, &models.Provider{Name: "alpha", URL: "http://x"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate CreateProvider err = %v, want ErrConflict", err)
	}

	all, err := s.ListProviders(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListProviders = %d, %v", len(all), err)
	}
	enabled, err := s.ListEnabledProviders(ctx)
	if err != nil || len(enabled) != 1 || enabled[0].ID != a {
		t.Fatalf("ListEnabledProviders = %+v, %v", enabled, err)
	}

	on := true
	if err := s.UpdateProvider(ctx, b, ProviderUpdate{Enabled: &on, URL: strPtr("http://beta/new.xml")}); err != nil {
		t.Fatalf("UpdateProvider: %v", err)
	}
	if err := s.UpdateProvider(ctx, b, ProviderUpdate{Name: strPtr("alpha")}); !errors.Is(err, ErrConflict) {
		t.Fatalf("rename onto existing name err = %v, want ErrConflict", err)
	}
	got, err := s.GetProviderByID(ctx, b)
	if err != nil {
		t.Fatalf("GetProviderByID: %v", err)
	}
	if !got.Enabled || got.URL != "http://beta/new.xml" || got.Name != "beta" {
		t.Errorf("updated provider = %+v", got)
	}

	at := time.Date(2025, 12, 26, 3, 0, 0, 0, time.UTC)
	if err := s.SetProviderImportStatus(ctx, a, models.ImportStatusPartial, at); err != nil {
		t.Fatalf("SetProviderImportStatus: %v", err)
	}
	got, _ = s.GetProviderByID(ctx, a)
	if got.LastImportStatus == nil || *got.LastImportStatus != models.ImportStatusPartial || !got.LastImportAt.Equal(at) {
		t.Errorf("import status = %v at %v", got.LastImportStatus, got.LastImportAt)
	}

	if err := s.DeleteProvider(ctx, a); err != nil {
		t.Fatalf("DeleteProvider: %v", err)
	}
	if _, err := s.GetProviderByID(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProviderByID after delete err = %v", err)
	}
	if err := s.DeleteProvider(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteProvider err = %v", err)
	}
	if err := s.UpdateProvider(ctx, a, ProviderUpdate{Enabled: &on}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateProvider missing err = %v", err)
	}
}

func TestCreateMappedChannel(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	a := mustProvider(t, s, "alpha", true)
	b := mustProvider(t, s, "beta", true)

	if _, err := s.LookupChannelMapping(ctx, a, "bbc1.uk"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lookup before create err = %v", err)
	}

	id, err := s.CreateMappedChannel(ctx, a, "bbc1.uk", "BBC One", nil)
	if err != nil {
		t.Fatalf("CreateMappedChannel: %v", err)
	}
	if _, err := s.CreateMappedChannel(ctx, a, "bbc1.uk", "BBC One", nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("second CreateMappedChannel err = %v, want ErrConflict", err)
	}
	got, err := s.LookupChannelMapping(ctx, a, "bbc1.uk")
	if err != nil || got != id {
		t.Fatalf("LookupChannelMapping = %d, %v; want %d", got, err, id)
	}

	// Another provider using the same XMLTV id lands on the same logical channel.
	idB, err := s.CreateMappedChannel(ctx, b, "bbc1.uk", "BBC 1", strPtr("http://logo/bbc1.png"))
	if err != nil {
		t.Fatalf("CreateMappedChannel(beta): %v", err)
	}
	if idB != id {
		t.Errorf("beta channel = %d, want %d", idB, id)
	}
	ch, err := s.GetChannelByID(ctx, id)
	if err != nil {
		t.Fatalf("GetChannelByID: %v", err)
	}
	if ch.DisplayName != "BBC One" || ch.IconURL == nil || *ch.IconURL != "http://logo/bbc1.png" {
		t.Errorf("channel = %+v", ch)
	}

	if _, err := s.CreateMappedChannel(ctx, a, "itv1.uk", "ITV1", nil); err != nil {
		t.Fatalf("CreateMappedChannel(itv1): %v", err)
	}
	channels, total, err := s.ListChannels(ctx, ChannelFilter{Search: "bbc"})
	if err != nil || total != 1 || len(channels) != 1 || channels[0].ID != id {
		t.Errorf("ListChannels(search) = %+v, %d, %v", channels, total, err)
	}
	_, total, err = s.ListChannels(ctx, ChannelFilter{ProviderID: &b})
	if err != nil || total != 1 {
		t.Errorf("ListChannels(provider beta) total = %d, %v", total, err)
	}
	_, total, _ = s.ListChannels(ctx, ChannelFilter{})
	if total != 2 {
		t.Errorf("ListChannels total = %d, want 2", total)
	}
}

func program(channelID, providerID int64, start time.Time, d time.Duration, title string) models.Program {
	return models.Program{ChannelID: channelID, ProviderID: providerID, StartTime: start, EndTime: start.Add(d), Title: title}
}

func TestInsertProgramsIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	pid := mustProvider(t, s, "alpha", true)
	ch, _ := s.CreateMappedChannel(ctx, pid, "channel1", "Channel 1", nil)

	base := time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)
	batch := []models.Program{
		program(ch, pid, base, time.Hour, "News"),
		program(ch, pid, base.Add(time.Hour), time.Hour, "Film"),
	}
	batch[1].Credits = models.Credits{Actors: []string{"A. Actor"}, Directors: []string{"D. Rector"}}
	batch[1].Description = strPtr("A film.")

	n, err := s.InsertPrograms(ctx, batch)
	if err != nil || n != 2 {
		t.Fatalf("InsertPrograms = %d, %v; want 2", n, err)
	}
	changed := append([]models.Program(nil), batch...)
	changed[0].Title = "Changed"
	n, err = s.InsertPrograms(ctx, changed)
	if err != nil || n != 0 {
		t.Fatalf("re-InsertPrograms = %d, %v; want 0", n, err)
	}

	got, err := s.ProgramsForChannel(ctx, ch, base.Add(-time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("ProgramsForChannel: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d programs, want 2", len(got))
	}
	if got[0].Title != "News" || got[1].Title != "Film" {
		t.Errorf("titles = %q, %q", got[0].Title, got[1].Title)
	}
	if !got[0].StartTime.Equal(base) || got[0].StartTime.Location() != time.UTC {
		t.Errorf("start = %v", got[0].StartTime)
	}
	if got[1].Description == nil || *got[1].Description != "A film." {
		t.Errorf("description = %v", got[1].Description)
	}
	if len(got[1].Credits.Actors) != 1 || got[1].Credits.Directors[0] != "D. Rector" {
		t.Errorf("credits = %+v", got[1].Credits)
	}
	if got[0].ProviderID != pid {
		t.Errorf("provider = %d, want %d", got[0].ProviderID, pid)
	}
}

func TestProgramsForChannelOverlap(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	pid := mustProvider(t, s, "alpha", true)
	ch, _ := s.CreateMappedChannel(ctx, pid, "channel1", "Channel 1", nil)
	other, _ := s.CreateMappedChannel(ctx, pid, "channel2", "Channel 2", nil)

	base := time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)
	if _, err := s.InsertPrograms(ctx, []models.Program{
		program(ch, pid, base.Add(2*time.Hour), time.Hour, "Late"),
		program(ch, pid, base, time.Hour, "Early"),
		program(ch, pid, base.Add(5*time.Hour), time.Hour, "Outside"),
		program(other, pid, base, time.Hour, "Other channel"),
	}); err != nil {
		t.Fatalf("InsertPrograms: %v", err)
	}

	// The window starts mid-way through "Early" and ends mid-way through "Late".
	got, err := s.ProgramsForChannel(ctx, ch, base.Add(30*time.Minute), base.Add(150*time.Minute))
	if err != nil {
		t.Fatalf("ProgramsForChannel: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Early" || got[1].Title != "Late" {
		t.Fatalf("got %+v", got)
	}

	// A window ending exactly at a programme's start excludes it.
	got, _ = s.ProgramsForChannel(ctx, ch, base.Add(time.Hour), base.Add(2*time.Hour))
	if len(got) != 0 {
		t.Errorf("boundary window returned %d programs", len(got))
	}
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	pid := mustProvider(t, s, "alpha", true)
	ch, _ := s.CreateMappedChannel(ctx, pid, "channel1", "Channel 1", nil)

	now := time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)
	const day = 24 * time.Hour
	if _, err := s.InsertPrograms(ctx, []models.Program{
		program(ch, pid, now.Add(-10*day), time.Hour, "too old"),
		program(ch, pid, now.Add(-7*day-30*time.Minute), time.Hour, "straddles start"),
		program(ch, pid, now, time.Hour, "current"),
		program(ch, pid, now.Add(7*day), time.Hour, "at window end"),
		program(ch, pid, now.Add(8*day), time.Hour, "too far"),
	}); err != nil {
		t.Fatalf("InsertPrograms: %v", err)
	}
	for _, started := range []time.Time{now.Add(-40 * day), now.Add(-time.Hour)} {
		if _, err := s.InsertImportLog(ctx, &models.ImportLogEntry{ProviderID: pid, CycleID: "c", StartedAt: started, Status: models.ImportStatusSuccess}); err != nil {
			t.Fatalf("InsertImportLog: %v", err)
		}
	}

	w := RetentionWindow{
		ProgramsEndBefore:  now.Add(-7 * day),
		ProgramsStartAfter: now.Add(7 * day),
		LogsBefore:         now.Add(-30 * day),
	}
	res, err := s.PurgeExpired(ctx, w)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if res.ProgramsDeleted != 2 || res.LogsDeleted != 1 {
		t.Errorf("PurgeExpired = %+v, want 2 programs and 1 log", res)
	}

	got, _ := s.ProgramsForChannel(ctx, ch, now.Add(-30*day), now.Add(30*day))
	if len(got) != 3 {
		t.Fatalf("remaining programs = %d, want 3", len(got))
	}
	for _, p := range got {
		if p.EndTime.Before(w.ProgramsEndBefore) || p.StartTime.After(w.ProgramsStartAfter) {
			t.Errorf("program %q outside window survived", p.Title)
		}
	}

	res, err = s.PurgeExpired(ctx, w)
	if err != nil || res.ProgramsDeleted != 0 || res.LogsDeleted != 0 {
		t.Errorf("second PurgeExpired = %+v, %v; want nothing deleted", res, err)
	}
}

func TestImportLogAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	a := mustProvider(t, s, "alpha", true)
	b := mustProvider(t, s, "beta", true)
	ch, _ := s.CreateMappedChannel(ctx, a, "channel1", "Channel 1", nil)

	start := time.Date(2025, 12, 26, 3, 0, 0, 0, time.UTC)
	finish := start.Add(time.Minute)
	msg := "fetch: HTTP 503"
	entries := []*models.ImportLogEntry{
		{ProviderID: a, CycleID: "cycle-1", StartedAt: start, FinishedAt: &finish, Status: models.ImportStatusSuccess, ChannelsSeen: 2, ProgramsInserted: 2},
		{ProviderID: b, CycleID: "cycle-1", StartedAt: start.Add(time.Second), FinishedAt: &finish, Status: models.ImportStatusFailed, ErrorMessage: &msg},
		{ProviderID: a, CycleID: "cycle-0", StartedAt: start.Add(-24 * time.Hour), Status: models.ImportStatusSuccess},
	}
	for _, e := range entries {
		if _, err := s.InsertImportLog(ctx, e); err != nil {
			t.Fatalf("InsertImportLog: %v", err)
		}
	}

	cycle, err := s.ListImportLogs(ctx, "cycle-1")
	if err != nil || len(cycle) != 2 {
		t.Fatalf("ListImportLogs = %d, %v", len(cycle), err)
	}
	if cycle[0].ProviderName != "alpha" || cycle[0].ProgramsInserted != 2 || !cycle[0].FinishedAt.Equal(finish) {
		t.Errorf("first entry = %+v", cycle[0])
	}
	if cycle[1].ErrorMessage == nil || *cycle[1].ErrorMessage != msg {
		t.Errorf("second entry error = %v", cycle[1].ErrorMessage)
	}

	latest, err := s.LatestImportLogs(ctx, 2)
	if err != nil || len(latest) != 2 || latest[0].ProviderID != b {
		t.Fatalf("LatestImportLogs = %+v, %v", latest, err)
	}

	if _, err := s.InsertPrograms(ctx, []models.Program{program(ch, a, start, time.Hour, "News")}); err != nil {
		t.Fatalf("InsertPrograms: %v", err)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Providers != 2 || st.Channels != 1 || st.Programs != 1 {
		t.Errorf("Stats totals = %+v", st)
	}
	if st.EarliestProgram == nil || !st.EarliestProgram.Equal(start) {
		t.Errorf("EarliestProgram = %v", st.EarliestProgram)
	}
	if st.LastSuccessfulImport == nil || !st.LastSuccessfulImport.Equal(finish) {
		t.Errorf("LastSuccessfulImport = %v", st.LastSuccessfulImport)
	}
}

func TestChannelAliasesAndResolve(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	a := mustProvider(t, s, "alpha", true)
	bbc, err := s.CreateMappedChannel(ctx, a, "bbc1.uk", "BBC One", nil)
	if err != nil {
		t.Fatalf("CreateMappedChannel: %v", err)
	}
	itv, err := s.CreateMappedChannel(ctx, a, "itv1.uk", "ITV1", nil)
	if err != nil {
		t.Fatalf("CreateMappedChannel: %v", err)
	}

	alias, err := s.CreateChannelAlias(ctx, bbc, "bbc1", strPtr("short"))
	if err != nil {
		t.Fatalf("CreateChannelAlias: %v", err)
	}
	if alias.ID == 0 || alias.ChannelID != bbc || alias.CreatedAt.IsZero() {
		t.Errorf("alias = %+v", alias)
	}
	if _, err := s.CreateChannelAlias(ctx, itv, "bbc1", nil); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate alias err = %v, want ErrConflict", err)
	}
	if _, err := s.CreateChannelAlias(ctx, itv, "101", nil); err != nil {
		t.Fatalf("CreateChannelAlias: %v", err)
	}

	tests := []struct {
		identifier string
		want       int64
	}{
		{itoa(bbc), bbc},
		{"itv1.uk", itv},
		{"bbc1", bbc},
		// Not a channel id, so the numeric alias wins.
		{"101", itv},
	}
	for _, tt := range tests {
		ch, err := s.ResolveChannel(ctx, tt.identifier)
		if err != nil || ch.ID != tt.want {
			t.Errorf("ResolveChannel(%q) = %+v, %v; want channel %d", tt.identifier, ch, err, tt.want)
		}
	}
	if _, err := s.ResolveChannel(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ResolveChannel(nope) err = %v", err)
	}

	all, err := s.ListChannelAliases(ctx, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListChannelAliases = %+v, %v", all, err)
	}
	if all[0].Alias != "bbc1" || all[0].ChannelDisplayName != "BBC One" || all[0].ChannelName != "bbc1.uk" {
		t.Errorf("first alias = %+v", all[0])
	}
	own, err := s.ListChannelAliases(ctx, &itv)
	if err != nil || len(own) != 1 || own[0].Alias != "101" {
		t.Errorf("ListChannelAliases(itv) = %+v, %v", own, err)
	}

	if err := s.DeleteChannelAlias(ctx, alias.ID); err != nil {
		t.Fatalf("DeleteChannelAlias: %v", err)
	}
	if err := s.DeleteChannelAlias(ctx, alias.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteChannelAlias err = %v", err)
	}
	if _, err := s.ResolveChannel(ctx, "bbc1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted alias still resolves: %v", err)
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
