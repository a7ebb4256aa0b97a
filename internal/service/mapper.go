package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/voyagen/epgvault/internal/store"
)

// ChannelMapper resolves (provider, provider channel id) pairs to logical
// channels, creating the channel and mapping on first sight.
type ChannelMapper struct {
	store store.Store
}

// NewChannelMapper returns a mapper backed by s.
func NewChannelMapper(s store.Store) *ChannelMapper {
	return &ChannelMapper{store: s}
}

// Resolve returns the logical channel for providerChannelID, creating it if
// no mapping exists yet. A lost creation race is resolved by re-reading the
// mapping the winner wrote.
func (m *ChannelMapper) Resolve(ctx context.Context, providerID int64, providerChannelID, displayName string, iconURL *string) (int64, error) {
	id, err := m.store.LookupChannelMapping(ctx, providerID, providerChannelID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("lookup mapping %q: %w", providerChannelID, err)
	}

	if displayName == "" {
		displayName = providerChannelID
	}
	id, err = m.store.CreateMappedChannel(ctx, providerID, providerChannelID, displayName, iconURL)
	if errors.Is(err, store.ErrConflict) {
		id, err = m.store.LookupChannelMapping(ctx, providerID, providerChannelID)
	}
	if err != nil {
		return 0, fmt.Errorf("create mapping %q: %w", providerChannelID, err)
	}
	return id, nil
}

// Lookup returns the mapped channel without creating one. ok is false when
// the provider never declared the channel.
func (m *ChannelMapper) Lookup(ctx context.Context, providerID int64, providerChannelID string) (id int64, ok bool, err error) {
	id, err = m.store.LookupChannelMapping(ctx, providerID, providerChannelID)
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, store.ErrNotFound):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("lookup mapping %q: %w", providerChannelID, err)
	}
}
