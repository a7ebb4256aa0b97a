package models

import "time"

// ImportLogEntry is the audit record of one provider import within one cycle.
type ImportLogEntry struct {
	ID               int64      `json:"id,omitempty"`
	ProviderID       int64      `json:"provider_id"`
	ProviderName     string     `json:"provider_name,omitempty"` // populated by read queries
	CycleID          string     `json:"cycle_id"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Status           string     `json:"status"`
	ChannelsSeen     int        `json:"channels_seen"`
	ProgramsInserted int        `json:"programs_inserted"`
	ProgramsSkipped  int        `json:"programs_skipped"`
	RecordsInvalid   int        `json:"records_invalid"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
}
