package models

import "time"

// Channel is a logical channel, decoupled from any provider's naming.
// Name holds the canonical identifier (the first provider channel id seen for it).
type Channel struct {
	ID          int64     `json:"id,omitempty"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	IconURL     *string   `json:"icon_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChannelMapping binds a provider-local channel id to a logical channel.
// The (ProviderID, ProviderChannelID) pair is unique and never remapped.
type ChannelMapping struct {
	ID                int64     `json:"id,omitempty"`
	ProviderID        int64     `json:"provider_id"`
	ProviderChannelID string    `json:"provider_channel_id"`
	ChannelID         int64     `json:"channel_id"`
	CreatedAt         time.Time `json:"created_at"`
}

// ChannelAlias is an extra lookup name for a channel (a short code, a
// provider's spelling). Aliases are unique across all channels.
type ChannelAlias struct {
	ID        int64     `json:"id,omitempty"`
	ChannelID int64     `json:"channel_id"`
	Alias     string    `json:"alias"`
	AliasType *string   `json:"alias_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Populated by list queries.
	ChannelName        string `json:"channel_name,omitempty"`
	ChannelDisplayName string `json:"channel_display_name,omitempty"`
}
