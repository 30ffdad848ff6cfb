package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/condorsolar/condor/pkg/enphase"
	"github.com/condorsolar/condor/pkg/log"
	"github.com/condorsolar/condor/pkg/mapping"
	"github.com/condorsolar/condor/pkg/types"
)

// LocalSources is the five-endpoint set polled from an on-site gateway.
func LocalSources(c *enphase.Client, host string) []Source {
	withHost := func(m func(json.RawMessage, string) []types.Record) func(json.RawMessage) []types.Record {
		return func(raw json.RawMessage) []types.Record { return m(raw, host) }
	}
	return []Source{
		{Name: "pdm_energy", Fetch: c.ProductionEnergy, Map: withHost(mapping.IntervalEnergy)},
		{Name: "production", Fetch: c.Production, Map: withHost(mapping.ProductionTotal)},
		{Name: "meter_readings", Fetch: c.MeterReadings, Map: withHost(mapping.MeterReadings)},
		{Name: "inverters", Fetch: c.InverterProduction, Map: withHost(mapping.InverterProduction)},
		{
			Name: "livedata",
			Fetch: func(ctx context.Context) (json.RawMessage, error) {
				return fetchLiveSnapshot(ctx, c)
			},
			Map: withHost(mapping.LiveData),
		},
	}
}

// fetchLiveSnapshot implements the live-stream handshake: fetch the
// snapshot; if the stream is disabled, issue exactly one enable command
// and re-fetch once. A stream still disabled after that skips the source
// for this cycle only; nothing is carried into the next cycle.
func fetchLiveSnapshot(ctx context.Context, c *enphase.Client) (json.RawMessage, error) {
	raw, err := c.LiveData(ctx)
	if err != nil {
		return nil, err
	}
	if mapping.LiveStreamState(raw) == mapping.StreamEnabled {
		return raw, nil
	}

	if _, err := c.EnableLiveStream(ctx); err != nil {
		return nil, fmt.Errorf("failed to enable live stream: %w", err)
	}
	raw, err = c.LiveData(ctx)
	if err != nil {
		return nil, err
	}
	if mapping.LiveStreamState(raw) != mapping.StreamEnabled {
		log.Ctx(ctx).InfoContext(ctx, "live-data stream still disabled, skipping this cycle")
		liveStreamSkipsTotal.Inc()
		return nil, nil
	}
	return raw, nil
}

// CloudSources is the per-system source set for the cloud API variant:
// the latest telemetry snapshot (AC meters plus battery modules) and the
// daily summary.
func CloudSources(c *enphase.Client, systemID int64) []Source {
	return []Source{
		{
			Name: fmt.Sprintf("telemetry/%d", systemID),
			Fetch: func(ctx context.Context) (json.RawMessage, error) {
				return c.LatestTelemetry(ctx, systemID)
			},
			Map: func(raw json.RawMessage) []types.Record {
				return mapping.Telemetry(raw, systemID)
			},
		},
		{
			Name: fmt.Sprintf("summary/%d", systemID),
			Fetch: func(ctx context.Context) (json.RawMessage, error) {
				return c.Summary(ctx, systemID)
			},
			Map: func(raw json.RawMessage) []types.Record {
				return mapping.Summary(raw, systemID)
			},
		},
	}
}
