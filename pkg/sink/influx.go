// Package sink writes normalized records to InfluxDB.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/condorsolar/condor/pkg/log"
	"github.com/condorsolar/condor/pkg/types"
)

// WriteError is returned when the sink rejects a record.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("sink write: %v", e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }

// Influx writes records synchronously to an InfluxDB 2 bucket with
// second precision.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInflux connects to the given InfluxDB instance. The connection is
// long-lived; Close releases it.
func NewInflux(url, token, org, bucket string) *Influx {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetPrecision(time.Second))
	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

// Ping verifies the server is reachable. Called once at startup so a
// dead sink aborts the process before the loop starts.
func (s *Influx) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb ping failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb not ready")
	}
	return nil
}

// Write stores one record. Null fields are dropped at this boundary
// (InfluxDB has no null field values); a record left with no concrete
// fields is skipped, not an error.
func (s *Influx) Write(ctx context.Context, rec types.Record) error {
	tags := make(map[string]string, len(rec.Tags))
	for _, t := range rec.Tags {
		tags[t.Key] = t.Value
	}
	fields := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		if v != nil {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		log.Ctx(ctx).DebugContext(ctx, "skipping record with only null fields",
			slog.String("measurement", rec.Measurement))
		return nil
	}

	point := write.NewPoint(rec.Measurement, tags, fields, rec.Timestamp)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// Close releases the underlying HTTP connections.
func (s *Influx) Close() error {
	s.client.Close()
	return nil
}
