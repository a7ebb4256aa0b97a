package service

import (
	"context"
	"testing"

	"github.com/voyagen/epgvault/internal/store"
)

// staleReadStore hides existing mappings from the first lookups, the way a
// concurrent writer committing between lookup and insert would look.
type staleReadStore struct {
	store.Store
	misses int
}

func (s *staleReadStore) LookupChannelMapping(ctx context.Context, providerID int64, providerChannelID string) (int64, error) {
	if s.misses > 0 {
		s.misses--
		return 0, store.ErrNotFound
	}
	return s.Store.LookupChannelMapping(ctx, providerID, providerChannelID)
}

func TestResolveIsStable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createProvider(t, s, "alpha", "http://alpha/epg.xml")
	m := NewChannelMapper(s)

	first, err := m.Resolve(ctx, p.ID, "channel1", "Channel One", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 3; i++ {
		got, err := m.Resolve(ctx, p.ID, "channel1", "Renamed", nil)
		if err != nil || got != first {
			t.Fatalf("Resolve #%d = %d, %v; want %d", i, got, err, first)
		}
	}
	other, _ := m.Resolve(ctx, p.ID, "channel2", "", nil)
	if other == first {
		t.Error("distinct provider channels share a logical channel")
	}
	ch, err := s.GetChannelByID(ctx, other)
	if err != nil || ch.DisplayName != "channel2" {
		t.Errorf("channel2 = %+v, %v; want display name defaulted to id", ch, err)
	}
}

func TestResolveRecoversFromLostRace(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	p := createProvider(t, base, "alpha", "http://alpha/epg.xml")

	winner, err := NewChannelMapper(base).Resolve(ctx, p.ID, "channel1", "Channel One", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	stale := &staleReadStore{Store: base, misses: 1}
	got, err := NewChannelMapper(stale).Resolve(ctx, p.ID, "channel1", "Channel One", nil)
	if err != nil {
		t.Fatalf("Resolve after lost race: %v", err)
	}
	if got != winner {
		t.Errorf("Resolve = %d, want winner %d", got, winner)
	}
	st, _ := base.Stats(ctx)
	if st.Channels != 1 {
		t.Errorf("channels = %d, want 1", st.Channels)
	}
}

func TestLookupUnknown(t *testing.T) {
	s := newTestStore(t)
	p := createProvider(t, s, "alpha", "http://alpha/epg.xml")
	_, ok, err := NewChannelMapper(s).Lookup(context.Background(), p.ID, "nope")
	if err != nil || ok {
		t.Errorf("Lookup = %v, %v; want not found", ok, err)
	}
}
