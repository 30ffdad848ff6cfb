// Package ingest drives the poll loop: fetch each source, map its raw
// JSON into records, write them to the sink, sleep, repeat. One source
// failing never stops the others.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/condorsolar/condor/pkg/log"
	"github.com/condorsolar/condor/pkg/types"
)

// Sink consumes normalized records. The scheduler never inspects sink
// internals; Close is called by main on shutdown.
type Sink interface {
	Write(ctx context.Context, rec types.Record) error
	Close() error
}

// Source is one endpoint in a poll cycle. Fetch may return (nil, nil) to
// opt out of the cycle without it counting as a failure (the live-data
// source does this while the stream is disabled).
type Source struct {
	Name  string
	Fetch func(ctx context.Context) (json.RawMessage, error)
	Map   func(raw json.RawMessage) []types.Record
}

// SourceStatus is the outcome of one source in the most recent cycle.
type SourceStatus struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Records int    `json:"records"`
}

// CycleStatus is a snapshot of the most recent cycle, served by the ops
// endpoint.
type CycleStatus struct {
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	Records    int            `json:"records"`
	Sources    []SourceStatus `json:"sources"`
}

// Scheduler runs the strictly sequential poll loop. The inter-cycle
// sleep is measured from the end of processing, so the actual period is
// processing time plus the configured interval.
type Scheduler struct {
	sources  []Source
	sink     Sink
	interval time.Duration

	mu   sync.Mutex
	last *CycleStatus
}

// New creates a scheduler over the given source set.
func New(sources []Source, sink Sink, interval time.Duration) *Scheduler {
	return &Scheduler{
		sources:  sources,
		sink:     sink,
		interval: interval,
	}
}

// Run polls until the context is canceled. On termination it drains:
// the in-flight per-source step completes, no new step starts, and the
// loop returns so main can release the client and sink.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Ctx(ctx).InfoContext(ctx, "ingestion loop started",
		slog.Duration("interval", s.interval),
		slog.Int("sources", len(s.sources)))

	for {
		s.runCycle(ctx)
		cyclesTotal.Inc()

		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "ingestion loop stopped")
			return nil
		case <-time.After(s.interval):
		}
	}
}

// Status returns a copy of the most recent cycle's outcome, or nil before
// the first cycle finishes.
func (s *Scheduler) Status() *CycleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	st := *s.last
	st.Sources = append([]SourceStatus(nil), s.last.Sources...)
	return &st
}

func (s *Scheduler) runCycle(ctx context.Context) {
	// The step context is detached from cancellation so a termination
	// signal lets the current fetch or write finish; the loop below stops
	// starting new steps instead.
	stepCtx := context.WithoutCancel(ctx)

	st := CycleStatus{StartedAt: time.Now().UTC()}
	for _, src := range s.sources {
		if ctx.Err() != nil {
			break
		}
		outcome := s.runSource(stepCtx, src)
		st.Sources = append(st.Sources, outcome)
		st.Records += outcome.Records
	}
	st.DurationMS = time.Since(st.StartedAt).Milliseconds()

	s.mu.Lock()
	s.last = &st
	s.mu.Unlock()
}

// runSource is the per-source isolation boundary: any fetch error is
// reported here and the cycle moves on.
func (s *Scheduler) runSource(ctx context.Context, src Source) SourceStatus {
	raw, err := src.Fetch(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "source fetch failed",
			slog.String("source", src.Name), slog.Any("error", err))
		sourceErrorsTotal.WithLabelValues(src.Name).Inc()
		return SourceStatus{Name: src.Name, Error: err.Error()}
	}
	if raw == nil {
		// source opted out this cycle
		return SourceStatus{Name: src.Name, OK: true}
	}

	wrote := 0
	for _, rec := range src.Map(raw) {
		if err := s.sink.Write(ctx, rec); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "record write failed",
				slog.String("source", src.Name),
				slog.String("measurement", rec.Measurement),
				slog.Any("error", err))
			writeErrorsTotal.Inc()
			continue
		}
		recordsWrittenTotal.WithLabelValues(rec.Measurement).Inc()
		wrote++
	}
	return SourceStatus{Name: src.Name, OK: true, Records: wrote}
}
