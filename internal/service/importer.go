// Package service runs the per-provider XMLTV import and the retention cleanup.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/voyagen/epgvault/internal/fetcher"
	"github.com/voyagen/epgvault/internal/models"
	"github.com/voyagen/epgvault/internal/store"
	"github.com/voyagen/epgvault/internal/xmltv"
)

// maxLoggedSkips caps the per-provider skip lines written to the log.
const maxLoggedSkips = 10

// Stage is a step of one provider's import.
type Stage int

const (
	StageFetching Stage = iota
	StageDecoding
	StageIngesting
	StageCompleted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageFetching:
		return "fetching"
	case StageDecoding:
		return "decoding"
	case StageIngesting:
		return "ingesting"
	case StageCompleted:
		return "completed"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError is the fatal error that ended an import, tagged with the stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Stage.String() + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Fetcher downloads a provider feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Download, error)
}

// Importer drives one provider's import end to end and records its audit entry.
type Importer struct {
	store     store.Store
	fetch     Fetcher
	mapper    *ChannelMapper
	batchSize int
	now       func() time.Time
}

// NewImporter returns an importer writing to s and downloading with f.
func NewImporter(s store.Store, f Fetcher, batchSize int) *Importer {
	return &Importer{
		store:     s,
		fetch:     f,
		mapper:    NewChannelMapper(s),
		batchSize: batchSize,
		now:       time.Now,
	}
}

// importRun accumulates one provider's outcome. It is written once, as the
// import log entry, when the run ends.
type importRun struct {
	provider models.Provider
	entry    models.ImportLogEntry
	stage    Stage
	// channels maps provider channel ids resolved during this run.
	channels map[string]int64
	// deferred counts programmes seen before their channel was declared, by
	// provider channel id.
	deferred map[string]int
	unknown  int
	ingestor *ProgramIngestor
}

// lateChannels returns the deferred channels that were declared further down
// the feed, with the number of programmes to replay for each.
func (r *importRun) lateChannels() map[string]int {
	late := make(map[string]int)
	for id, n := range r.deferred {
		if _, ok := r.channels[id]; ok {
			late[id] = n
		}
	}
	return late
}

func (r *importRun) fail(stage Stage, err error) error {
	r.stage = StageFailed
	return &StageError{Stage: stage, Err: err}
}

// Import runs provider p as part of cycle cycleID. It always writes exactly
// one import log entry and returns it; the error is the fatal condition that
// ended the run, if any.
func (im *Importer) Import(ctx context.Context, p models.Provider, cycleID string) (models.ImportLogEntry, error) {
	run := &importRun{
		provider: p,
		entry: models.ImportLogEntry{
			ProviderID:   p.ID,
			ProviderName: p.Name,
			CycleID:      cycleID,
			StartedAt:    im.now().UTC(),
		},
		channels: make(map[string]int64),
		deferred: make(map[string]int),
		ingestor: NewProgramIngestor(im.store, im.batchSize),
	}
	log.Printf("import[%s]: fetching %s", p.Name, p.URL)

	runErr := im.run(ctx, run)

	finished := im.now().UTC()
	e := &run.entry
	e.FinishedAt = &finished
	e.ProgramsInserted = run.ingestor.Inserted
	e.ProgramsSkipped += run.ingestor.Skipped + run.unknown
	e.Status = outcome(e, runErr)
	if runErr != nil {
		msg := runErr.Error()
		e.ErrorMessage = &msg
		log.Printf("import[%s]: %s after %s inserted: %v", p.Name, e.Status, humanize.Comma(int64(e.ProgramsInserted)), runErr)
	} else {
		log.Printf("import[%s]: %s, %s channels, %s inserted, %s skipped, %s invalid in %s",
			p.Name, e.Status, humanize.Comma(int64(e.ChannelsSeen)), humanize.Comma(int64(e.ProgramsInserted)),
			humanize.Comma(int64(e.ProgramsSkipped)), humanize.Comma(int64(e.RecordsInvalid)),
			finished.Sub(e.StartedAt).Round(time.Millisecond))
	}
	if run.unknown > 0 {
		log.Printf("import[%s]: %s programmes referenced undeclared channels", p.Name, humanize.Comma(int64(run.unknown)))
	}

	id, err := im.store.InsertImportLog(ctx, e)
	if err != nil {
		return *e, errors.Join(runErr, fmt.Errorf("write import log: %w", err))
	}
	e.ID = id
	if err := im.store.SetProviderImportStatus(ctx, p.ID, e.Status, finished); err != nil {
		log.Printf("import[%s]: set import status: %v", p.Name, err)
	}
	return *e, runErr
}

// outcome maps the run result to an import status. A run that stopped early
// but committed programs is partial; one that finished with malformed
// records is partial too.
func outcome(e *models.ImportLogEntry, runErr error) string {
	switch {
	case runErr != nil && e.ProgramsInserted > 0:
		return models.ImportStatusPartial
	case runErr != nil:
		return models.ImportStatusFailed
	case e.RecordsInvalid > 0:
		return models.ImportStatusPartial
	default:
		return models.ImportStatusSuccess
	}
}

func (im *Importer) run(ctx context.Context, run *importRun) error {
	run.stage = StageFetching
	dl, err := im.fetch.Fetch(ctx, run.provider.URL)
	if err != nil {
		return run.fail(StageFetching, err)
	}
	defer dl.Remove()
	rc, err := dl.Open()
	if err != nil {
		return run.fail(StageFetching, err)
	}
	defer rc.Close()

	run.stage = StageDecoding
	dec := xmltv.NewDecoder(rc)
	for {
		rec, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep what was decoded before the envelope broke.
			if ferr := run.ingestor.Flush(ctx); ferr != nil {
				log.Printf("import[%s]: flush before decode failure: %v", run.provider.Name, ferr)
			}
			return run.fail(StageDecoding, err)
		}
		if err := im.handle(ctx, run, rec); err != nil {
			return run.fail(StageIngesting, err)
		}
	}

	if late := run.lateChannels(); len(late) > 0 {
		if err := im.replay(ctx, run, dl, late); err != nil {
			return err
		}
	}

	run.stage = StageIngesting
	if err := run.ingestor.Flush(ctx); err != nil {
		return run.fail(StageIngesting, err)
	}
	run.stage = StageCompleted
	return nil
}

// replay reads the download a second time and ingests the programmes that
// preceded their channel declaration. Only the first late[id] programmes of
// each channel are taken; later ones were ingested by the first pass.
func (im *Importer) replay(ctx context.Context, run *importRun, dl *fetcher.Download, late map[string]int) error {
	pending := 0
	for _, n := range late {
		pending += n
	}
	log.Printf("import[%s]: replaying %s programmes declared before their channel", run.provider.Name, humanize.Comma(int64(pending)))

	rc, err := dl.Open()
	if err != nil {
		return run.fail(StageDecoding, err)
	}
	defer rc.Close()
	dec := xmltv.NewDecoder(rc)
	for pending > 0 {
		rec, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return run.fail(StageDecoding, err)
		}
		if rec.Kind != xmltv.KindProgramme || late[rec.Programme.ChannelID] == 0 {
			continue
		}
		pr := rec.Programme
		late[pr.ChannelID]--
		pending--
		run.unknown--
		if err := run.ingestor.Add(ctx, toProgram(pr, run.channels[pr.ChannelID], run.provider.ID)); err != nil {
			return run.fail(StageIngesting, err)
		}
	}
	return nil
}

func (im *Importer) handle(ctx context.Context, run *importRun, rec xmltv.Record) error {
	switch rec.Kind {
	case xmltv.KindChannel:
		ch := rec.Channel
		if _, ok := run.channels[ch.ID]; ok {
			return nil
		}
		id, err := im.mapper.Resolve(ctx, run.provider.ID, ch.ID, ch.DisplayName, optional(ch.IconURL))
		if err != nil {
			return err
		}
		run.channels[ch.ID] = id
		run.entry.ChannelsSeen++

	case xmltv.KindProgramme:
		pr := rec.Programme
		channelID, ok := run.channels[pr.ChannelID]
		if !ok {
			id, found, err := im.mapper.Lookup(ctx, run.provider.ID, pr.ChannelID)
			if err != nil {
				return err
			}
			if !found {
				run.deferred[pr.ChannelID]++
				run.unknown++
				return nil
			}
			run.channels[pr.ChannelID] = id
			channelID = id
		}
		return run.ingestor.Add(ctx, toProgram(pr, channelID, run.provider.ID))

	case xmltv.KindSkipped:
		run.entry.RecordsInvalid++
		if rec.Skip.Element == "programme" {
			run.entry.ProgramsSkipped++
		}
		if run.entry.RecordsInvalid <= maxLoggedSkips {
			log.Printf("import[%s]: %v", run.provider.Name, rec.Skip)
		}
	}
	return nil
}

func toProgram(pr *xmltv.Programme, channelID, providerID int64) models.Program {
	return models.Program{
		ChannelID:      channelID,
		ProviderID:     providerID,
		StartTime:      pr.Start,
		EndTime:        pr.Stop,
		Title:          pr.Title,
		Subtitle:       optional(pr.SubTitle),
		Description:    optional(pr.Description),
		Category:       optional(pr.Category),
		EpisodeNum:     optional(pr.EpisodeNum),
		Rating:         optional(pr.Rating),
		IconURL:        optional(pr.IconURL),
		ProductionYear: optional(pr.ProductionYear),
		Country:        optional(pr.Country),
		Credits: models.Credits{
			Actors:     pr.Credits.Actors,
			Directors:  pr.Credits.Directors,
			Presenters: pr.Credits.Presenters,
			Writers:    pr.Credits.Writers,
			Producers:  pr.Credits.Producers,
		},
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
