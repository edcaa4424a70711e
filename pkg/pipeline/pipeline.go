// Package pipeline drives bulk ingestion: a worker pool pushes a range of
// book identifiers through the ingest flow and exposes a progress snapshot
// while the run is in flight.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/gutensearch/pkg/guten"
)

const (
	defaultWorkers = 4
	maxWorkers     = 32
	maxErrors      = 100
)

// Runner pushes one book through the ingest flow and reports whether it was
// newly stored.
type Runner func(ctx context.Context, id guten.BookID) (stored bool, err error)

// Status is a snapshot of the current or most recent run.
type Status struct {
	Running    bool       `json:"running"`
	Total      int        `json:"total"`
	Stored     int        `json:"stored"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Errors     []string   `json:"errors,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Pipeline runs at most one bulk ingestion at a time.
type Pipeline struct {
	run Runner
	log *slog.Logger

	mu     sync.Mutex
	status Status
}

// New wires a pipeline over the given runner.
func New(run Runner, log *slog.Logger) *Pipeline {
	return &Pipeline{run: run, log: log}
}

// Execute starts a background run over [from, to] with the given worker
// count. It returns immediately; progress is read through Status. A second
// Execute while one is running is refused.
func (p *Pipeline) Execute(ctx context.Context, from, to guten.BookID, workers int) error {
	if from <= 0 || to < from {
		return fmt.Errorf("invalid range %d..%d", from, to)
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	p.mu.Lock()
	if p.status.Running {
		p.mu.Unlock()
		return fmt.Errorf("a pipeline run is already in progress")
	}
	now := time.Now()
	p.status = Status{Running: true, Total: int(to-from) + 1, StartedAt: &now}
	p.mu.Unlock()

	p.log.Info("pipeline started", "from", from, "to", to, "workers", workers)
	go p.execute(ctx, from, to, workers)
	return nil
}

func (p *Pipeline) execute(ctx context.Context, from, to guten.BookID, workers int) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for id := from; id <= to; id++ {
		if ctx.Err() != nil {
			p.record(func(s *Status) {
				s.Failed++
				s.appendError(fmt.Sprintf("book %d: %v", id, ctx.Err()))
			})
			continue
		}
		id := id
		g.Go(func() error {
			stored, err := p.run(ctx, id)
			p.record(func(s *Status) {
				switch {
				case err != nil:
					s.Failed++
					s.appendError(fmt.Sprintf("book %d: %v", id, err))
				case stored:
					s.Stored++
				default:
					s.Skipped++
				}
			})
			// Individual failures never cancel the run.
			return nil
		})
	}
	_ = g.Wait()

	p.record(func(s *Status) {
		s.Running = false
		now := time.Now()
		s.FinishedAt = &now
	})

	final := p.Status()
	p.log.Info("pipeline finished", "stored", final.Stored,
		"skipped", final.Skipped, "failed", final.Failed)
}

func (p *Pipeline) record(update func(*Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	update(&p.status)
}

func (s *Status) appendError(msg string) {
	if len(s.Errors) < maxErrors {
		s.Errors = append(s.Errors, msg)
	}
}

// Status returns a copy of the progress snapshot.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.status
	out.Errors = append([]string(nil), p.status.Errors...)
	return out
}
