package models

// Import status values recorded on import log entries and providers.
const (
	ImportStatusSuccess = "success"
	ImportStatusPartial = "partial"
	ImportStatusFailed  = "failed"
)

// Cycle trigger origins.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerStartup   = "startup"
)
