// Package scheduler runs import cycles: every enabled provider in turn, then
// the retention cleanup. At most one cycle runs at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/voyagen/epgvault/internal/cache"
	"github.com/voyagen/epgvault/internal/models"
	"github.com/voyagen/epgvault/internal/store"
)

// ErrAlreadyRunning rejects a trigger while another cycle is in flight.
var ErrAlreadyRunning = errors.New("import cycle already running")

// ErrProviderDisabled rejects a single-provider import of a disabled provider.
var ErrProviderDisabled = errors.New("provider is disabled")

// State is the scheduler's single-flight state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Providers lists the providers a cycle imports.
type Providers interface {
	ListEnabledProviders(ctx context.Context) ([]models.Provider, error)
	GetProviderByID(ctx context.Context, providerID int64) (*models.Provider, error)
}

// Importer imports one provider and records its audit entry.
type Importer interface {
	Import(ctx context.Context, p models.Provider, cycleID string) (models.ImportLogEntry, error)
}

// Cleaner purges data outside the retention window.
type Cleaner interface {
	Run(ctx context.Context) (store.PurgeResult, error)
}

// Locker extends the single-flight guard across processes.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), err error)
}

// Options configure a Scheduler.
type Options struct {
	Hour, Minute int
	Location     *time.Location
	// Locker is optional; when set a cycle also needs the distributed lock.
	Locker Locker
}

// CycleReport summarises one cycle.
type CycleReport struct {
	ID         string                  `json:"id"`
	Trigger    string                  `json:"trigger"`
	ProviderID *int64                  `json:"provider_id,omitempty"` // set for single-provider runs
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
	Status     string                  `json:"status,omitempty"`
	Providers  []models.ImportLogEntry `json:"providers"`
	Cleanup    *store.PurgeResult      `json:"cleanup,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// Status is the snapshot served to callers.
type Status struct {
	State   string       `json:"state"`
	Current *CycleReport `json:"current,omitempty"`
	Last    *CycleReport `json:"last,omitempty"`
	NextRun *time.Time   `json:"next_run,omitempty"`
}

// Scheduler owns the daily timer and the single-flight guard shared with manual triggers.
type Scheduler struct {
	providers Providers
	importer  Importer
	cleaner   Cleaner
	opts      Options
	now       func() time.Time

	mu      sync.Mutex
	state   State
	current *CycleReport
	last    *CycleReport
	nextRun time.Time

	wg sync.WaitGroup
}

// New returns an idle scheduler.
func New(providers Providers, importer Importer, cleaner Cleaner, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		providers: providers,
		importer:  importer,
		cleaner:   cleaner,
		opts:      opts,
		now:       time.Now,
	}
}

// begin moves Idle -> Running and acquires the optional distributed lock.
// The returned release moves Running -> Idle.
func (s *Scheduler) begin(ctx context.Context, report *CycleReport) (release func(), err error) {
	s.mu.Lock()
	if s.state == Running {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.state = Running
	s.current = report
	s.mu.Unlock()

	unlock := func() {}
	if s.opts.Locker != nil {
		u, err := s.opts.Locker.TryLock(ctx)
		switch {
		case errors.Is(err, cache.ErrLocked):
			s.finish(nil)
			return nil, fmt.Errorf("%w: held by another instance", ErrAlreadyRunning)
		case err != nil:
			log.Printf("cycle %s: distributed lock unavailable, running unguarded: %v", report.ID, err)
		default:
			unlock = u
		}
	}
	return func() {
		unlock()
		s.finish(report)
	}, nil
}

func (s *Scheduler) finish(report *CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.current = nil
	if report != nil {
		s.last = report
	}
}

func (s *Scheduler) newReport(trigger string) *CycleReport {
	return &CycleReport{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.now().UTC(),
		Providers: []models.ImportLogEntry{},
	}
}

// Trigger starts a full cycle in the background and returns its id, or
// ErrAlreadyRunning. The cycle is not cancelled when ctx is.
func (s *Scheduler) Trigger(ctx context.Context, trigger string) (string, error) {
	ctx = context.WithoutCancel(ctx)
	report := s.newReport(trigger)
	release, err := s.begin(ctx, report)
	if err != nil {
		return "", err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		s.runCycle(ctx, report)
	}()
	return report.ID, nil
}

// TriggerProvider imports a single provider in the background under the same
// guard. It does not run the cleanup.
func (s *Scheduler) TriggerProvider(ctx context.Context, providerID int64) (string, error) {
	ctx = context.WithoutCancel(ctx)
	p, err := s.providers.GetProviderByID(ctx, providerID)
	if err != nil {
		return "", err
	}
	if !p.Enabled {
		return "", fmt.Errorf("%w: %s", ErrProviderDisabled, p.Name)
	}
	report := s.newReport(models.TriggerManual)
	report.ProviderID = &p.ID
	release, err := s.begin(ctx, report)
	if err != nil {
		return "", err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		log.Printf("cycle %s: importing provider %s only", report.ID, p.Name)
		s.importAll(ctx, report, []models.Provider{*p})
		s.complete(report)
	}()
	return report.ID, nil
}

// RunCycle runs a full cycle synchronously.
func (s *Scheduler) RunCycle(ctx context.Context, trigger string) (*CycleReport, error) {
	report := s.newReport(trigger)
	release, err := s.begin(ctx, report)
	if err != nil {
		return nil, err
	}
	defer release()
	s.runCycle(ctx, report)
	return report, nil
}

func (s *Scheduler) runCycle(ctx context.Context, report *CycleReport) {
	log.Printf("cycle %s: started (%s)", report.ID, report.Trigger)
	providers, err := s.providers.ListEnabledProviders(ctx)
	if err != nil {
		s.mu.Lock()
		report.Error = fmt.Sprintf("list providers: %v", err)
		s.mu.Unlock()
		s.complete(report)
		return
	}
	s.importAll(ctx, report, providers)

	res, err := s.cleaner.Run(ctx)
	s.mu.Lock()
	if err != nil {
		report.Error = err.Error()
	} else {
		report.Cleanup = &res
	}
	s.mu.Unlock()
	s.complete(report)
}

// importAll runs providers sequentially; a failure never stops the next one.
func (s *Scheduler) importAll(ctx context.Context, report *CycleReport, providers []models.Provider) {
	for _, p := range providers {
		entry, err := s.importer.Import(ctx, p, report.ID)
		if err != nil {
			log.Printf("cycle %s: provider %s: %v", report.ID, p.Name, err)
		}
		s.mu.Lock()
		report.Providers = append(report.Providers, entry)
		s.mu.Unlock()
	}
}

func (s *Scheduler) complete(report *CycleReport) {
	finished := s.now().UTC()
	s.mu.Lock()
	report.FinishedAt = &finished
	report.Status = cycleStatus(report)
	s.mu.Unlock()

	inserted := 0
	for _, e := range report.Providers {
		inserted += e.ProgramsInserted
	}
	log.Printf("cycle %s: %s, %d providers, %s programs inserted in %s",
		report.ID, report.Status, len(report.Providers), humanize.Comma(int64(inserted)),
		finished.Sub(report.StartedAt).Round(time.Millisecond))
}

// cycleStatus aggregates provider outcomes: failed when nothing succeeded,
// partial when anything fell short, success otherwise.
func cycleStatus(r *CycleReport) string {
	if r.Error != "" && len(r.Providers) == 0 {
		return models.ImportStatusFailed
	}
	var ok, failed int
	for _, e := range r.Providers {
		switch e.Status {
		case models.ImportStatusSuccess:
			ok++
		case models.ImportStatusFailed:
			failed++
		}
	}
	switch {
	case len(r.Providers) > 0 && failed == len(r.Providers):
		return models.ImportStatusFailed
	case ok < len(r.Providers) || r.Error != "":
		return models.ImportStatusPartial
	default:
		return models.ImportStatusSuccess
	}
}

// Start runs the daily timer until ctx is cancelled. A timer firing while a
// manual cycle runs is skipped.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := NextRun(s.now(), s.opts.Hour, s.opts.Minute, s.opts.Location)
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()
		log.Printf("scheduler: next cycle at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if _, err := s.Trigger(ctx, models.TriggerScheduled); err != nil {
			log.Printf("scheduler: skipped: %v", err)
		}
	}
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state.String()}
	if s.current != nil {
		cur := *s.current
		cur.Providers = append([]models.ImportLogEntry(nil), s.current.Providers...)
		st.Current = &cur
	}
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	if !s.nextRun.IsZero() {
		next := s.nextRun
		st.NextRun = &next
	}
	return st
}

// Wait blocks until background cycles started by Trigger have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
