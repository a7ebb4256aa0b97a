package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/voyagen/epgvault/internal/store"
)

const day = 24 * time.Hour

// Cleaner deletes programs outside the rolling retention window and
// import log entries older than the log horizon.
type Cleaner struct {
	store        store.Store
	retention    time.Duration
	logRetention time.Duration
	now          func() time.Time
}

// NewCleaner keeps programs within retentionDays of now in both directions
// and log entries for logRetentionDays. A non-positive logRetentionDays
// falls back to retentionDays.
func NewCleaner(s store.Store, retentionDays, logRetentionDays int) *Cleaner {
	if logRetentionDays <= 0 {
		logRetentionDays = retentionDays
	}
	return &Cleaner{
		store:        s,
		retention:    time.Duration(retentionDays) * day,
		logRetention: time.Duration(logRetentionDays) * day,
		now:          time.Now,
	}
}

// Window returns the retention window relative to now.
func (c *Cleaner) Window(now time.Time) store.RetentionWindow {
	now = now.UTC()
	return store.RetentionWindow{
		ProgramsEndBefore:  now.Add(-c.retention),
		ProgramsStartAfter: now.Add(c.retention),
		LogsBefore:         now.Add(-c.logRetention),
	}
}

// Run purges expired rows in one transaction. Running it again without new
// data deletes nothing.
func (c *Cleaner) Run(ctx context.Context) (store.PurgeResult, error) {
	w := c.Window(c.now())
	res, err := c.store.PurgeExpired(ctx, w)
	if err != nil {
		return res, fmt.Errorf("cleanup: %w", err)
	}
	log.Printf("cleanup: removed %s programs outside %s..%s, %s log entries before %s",
		humanize.Comma(res.ProgramsDeleted), w.ProgramsEndBefore.Format(time.RFC3339),
		w.ProgramsStartAfter.Format(time.RFC3339), humanize.Comma(res.LogsDeleted),
		w.LogsBefore.Format(time.RFC3339))
	return res, nil
}
