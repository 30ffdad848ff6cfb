package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/condorsolar/condor/pkg/enphase"
	"github.com/condorsolar/condor/pkg/log"
	"github.com/condorsolar/condor/pkg/mapping"
	"github.com/levenlabs/go-lflag"
)

// Configured builds the scheduler from flags. In local mode it polls the
// five gateway endpoints; in cloud mode it lists the account's systems
// once at startup and polls telemetry and summary for each.
func Configured(gw *enphase.Gateway, sink Sink) *Scheduler {
	interval := lflag.Duration("poll-interval", time.Minute, "Sleep between poll cycles, measured from end of processing")

	s := &Scheduler{}

	lflag.Do(func() {
		if *interval <= 0 {
			panic(fmt.Sprintf("poll-interval must be positive, got %v", *interval))
		}

		var sources []Source
		if gw.Local {
			sources = LocalSources(gw.Client, gw.Host)
		} else {
			ctx := context.Background()
			raw, err := gw.Client.Systems(ctx, 0, 0)
			if err != nil {
				panic(fmt.Sprintf("failed to list systems: %v", err))
			}
			ids := mapping.SystemIDs(raw)
			if len(ids) == 0 {
				panic("no systems accessible to this account")
			}
			log.Ctx(ctx).InfoContext(ctx, "polling cloud systems", slog.Int("count", len(ids)))
			for _, id := range ids {
				sources = append(sources, CloudSources(gw.Client, id)...)
			}
		}

		s.sources = sources
		s.sink = sink
		s.interval = *interval
	})

	return s
}
