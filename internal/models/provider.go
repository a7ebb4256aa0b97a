package models

import "time"

// Provider is an external XMLTV source identified by its feed URL.
type Provider struct {
	ID               int64      `json:"id,omitempty"`
	Name             string     `json:"name"`
	URL              string     `json:"url"`
	Enabled          bool       `json:"enabled"`
	LastImportStatus *string    `json:"last_import_status,omitempty"`
	LastImportAt     *time.Time `json:"last_import_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
