package service

import (
	"context"
	"fmt"

	"github.com/voyagen/epgvault/internal/models"
)

// DefaultBatchSize is the number of programs committed per transaction.
const DefaultBatchSize = 500

// ProgramWriter is the storage the ingestor commits batches to.
type ProgramWriter interface {
	InsertPrograms(ctx context.Context, programs []models.Program) (int, error)
}

// ProgramIngestor buffers programs and commits them in bounded batches.
// Rows whose (channel, start, end) key already exists count as skipped.
// After a failed commit the ingestor rejects further work.
type ProgramIngestor struct {
	w         ProgramWriter
	batchSize int
	pending   []models.Program
	err       error

	Inserted int
	Skipped  int
	Batches  int
}

// NewProgramIngestor returns an ingestor writing to w. A non-positive
// batchSize selects DefaultBatchSize.
func NewProgramIngestor(w ProgramWriter, batchSize int) *ProgramIngestor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ProgramIngestor{w: w, batchSize: batchSize, pending: make([]models.Program, 0, batchSize)}
}

// Add queues p and commits the batch once it is full.
func (g *ProgramIngestor) Add(ctx context.Context, p models.Program) error {
	if g.err != nil {
		return g.err
	}
	g.pending = append(g.pending, p)
	if len(g.pending) >= g.batchSize {
		return g.Flush(ctx)
	}
	return nil
}

// Pending returns the number of queued, uncommitted programs.
func (g *ProgramIngestor) Pending() int { return len(g.pending) }

// Flush commits the queued programs.
func (g *ProgramIngestor) Flush(ctx context.Context) error {
	if g.err != nil {
		return g.err
	}
	if len(g.pending) == 0 {
		return nil
	}
	n, err := g.w.InsertPrograms(ctx, g.pending)
	if err != nil {
		g.err = fmt.Errorf("commit batch of %d programs: %w", len(g.pending), err)
		g.pending = g.pending[:0]
		return g.err
	}
	g.Batches++
	g.Inserted += n
	g.Skipped += len(g.pending) - n
	g.pending = g.pending[:0]
	return nil
}
