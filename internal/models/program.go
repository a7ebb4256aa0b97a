package models

import "time"

// Credits holds the cast and crew listed for a programme.
type Credits struct {
	Actors     []string `json:"actors,omitempty"`
	Directors  []string `json:"directors,omitempty"`
	Presenters []string `json:"presenters,omitempty"`
	Writers    []string `json:"writers,omitempty"`
	Producers  []string `json:"producers,omitempty"`
}

// Empty reports whether no role has any entry.
func (c Credits) Empty() bool {
	return len(c.Actors) == 0 && len(c.Directors) == 0 && len(c.Presenters) == 0 &&
		len(c.Writers) == 0 && len(c.Producers) == 0
}

// Program is a scheduled programme on a logical channel. StartTime and EndTime are UTC.
// (ChannelID, StartTime, EndTime) is the dedup key.
type Program struct {
	ID             int64     `json:"id,omitempty"`
	ChannelID      int64     `json:"channel_id"`
	ProviderID     int64     `json:"provider_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Title          string    `json:"title"`
	Subtitle       *string   `json:"subtitle,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Category       *string   `json:"category,omitempty"`
	EpisodeNum     *string   `json:"episode_num,omitempty"`
	Rating         *string   `json:"rating,omitempty"`
	Credits        Credits   `json:"credits"`
	IconURL        *string   `json:"icon_url,omitempty"`
	ProductionYear *string   `json:"production_year,omitempty"`
	Country        *string   `json:"country,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}
