package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/condorsolar/condor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records writes and can fail selected measurements.
type captureSink struct {
	mu      sync.Mutex
	records []types.Record
	failOn  string
}

func (s *captureSink) Write(_ context.Context, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && rec.Measurement == s.failOn {
		return errors.New("sink rejected record")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) written() []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Record(nil), s.records...)
}

func staticSource(name, measurement string) Source {
	return Source{
		Name: name,
		Fetch: func(context.Context) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
		Map: func(json.RawMessage) []types.Record {
			return []types.Record{{Measurement: measurement, Fields: map[string]any{"v": 1.0}}}
		},
	}
}

func TestScheduler(t *testing.T) {
	ctx := context.Background()

	t.Run("SourceFailureIsolated", func(t *testing.T) {
		sink := &captureSink{}
		sources := []Source{
			staticSource("a", "m_a"),
			{
				Name: "b",
				Fetch: func(context.Context) (json.RawMessage, error) {
					return nil, errors.New("gateway timeout")
				},
				Map: func(json.RawMessage) []types.Record { return nil },
			},
			staticSource("c", "m_c"),
		}
		s := New(sources, sink, time.Minute)

		s.runCycle(ctx)

		written := sink.written()
		require.Len(t, written, 2, "sources after the failing one still run")
		assert.Equal(t, "m_a", written[0].Measurement)
		assert.Equal(t, "m_c", written[1].Measurement)

		st := s.Status()
		require.NotNil(t, st)
		require.Len(t, st.Sources, 3)
		assert.True(t, st.Sources[0].OK)
		assert.False(t, st.Sources[1].OK)
		assert.Contains(t, st.Sources[1].Error, "gateway timeout")
		assert.True(t, st.Sources[2].OK)
		assert.Equal(t, 2, st.Records)
	})

	t.Run("WriteFailureContinues", func(t *testing.T) {
		sink := &captureSink{failOn: "bad"}
		src := Source{
			Name: "multi",
			Fetch: func(context.Context) (json.RawMessage, error) {
				return json.RawMessage(`{}`), nil
			},
			Map: func(json.RawMessage) []types.Record {
				return []types.Record{
					{Measurement: "good1", Fields: map[string]any{"v": 1.0}},
					{Measurement: "bad", Fields: map[string]any{"v": 2.0}},
					{Measurement: "good2", Fields: map[string]any{"v": 3.0}},
				}
			},
		}
		s := New([]Source{src}, sink, time.Minute)

		s.runCycle(ctx)

		written := sink.written()
		require.Len(t, written, 2, "a rejected record must not stop the rest of the batch")
		assert.Equal(t, "good1", written[0].Measurement)
		assert.Equal(t, "good2", written[1].Measurement)

		st := s.Status()
		require.NotNil(t, st)
		assert.True(t, st.Sources[0].OK, "write failures don't mark the source failed")
		assert.Equal(t, 2, st.Sources[0].Records)
	})

	t.Run("OptOutSource", func(t *testing.T) {
		sink := &captureSink{}
		src := Source{
			Name: "livedata",
			Fetch: func(context.Context) (json.RawMessage, error) {
				return nil, nil
			},
			Map: func(json.RawMessage) []types.Record {
				t.Error("map must not run for an opted-out source")
				return nil
			},
		}
		s := New([]Source{src}, sink, time.Minute)

		s.runCycle(ctx)

		assert.Empty(t, sink.written())
		st := s.Status()
		require.NotNil(t, st)
		assert.True(t, st.Sources[0].OK, "opting out is not a failure")
		assert.Zero(t, st.Sources[0].Records)
	})

	t.Run("StatusBeforeFirstCycle", func(t *testing.T) {
		s := New(nil, &captureSink{}, time.Minute)
		assert.Nil(t, s.Status())
	})

	t.Run("StatusIsACopy", func(t *testing.T) {
		sink := &captureSink{}
		s := New([]Source{staticSource("a", "m_a")}, sink, time.Minute)
		s.runCycle(ctx)

		st := s.Status()
		require.NotNil(t, st)
		st.Sources[0].Name = "mutated"
		assert.Equal(t, "a", s.Status().Sources[0].Name)
	})

	t.Run("RunStopsOnCancel", func(t *testing.T) {
		sink := &captureSink{}
		var cycles int
		src := Source{
			Name: "counter",
			Fetch: func(context.Context) (json.RawMessage, error) {
				cycles++
				return json.RawMessage(`{}`), nil
			},
			Map: func(json.RawMessage) []types.Record { return nil },
		}
		s := New([]Source{src}, sink, time.Hour)

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- s.Run(runCtx) }()

		// first cycle runs immediately, then the loop sleeps
		require.Eventually(t, func() bool { return s.Status() != nil }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run should return promptly after cancellation")
		}
		assert.Equal(t, 1, cycles, "no new cycle starts after cancellation")
	})

	t.Run("CancelMidCycleSkipsRemainingSources", func(t *testing.T) {
		sink := &captureSink{}
		runCtx, cancel := context.WithCancel(ctx)
		var ran []string
		mkSrc := func(name string, cancelAfter bool) Source {
			return Source{
				Name: name,
				Fetch: func(context.Context) (json.RawMessage, error) {
					ran = append(ran, name)
					if cancelAfter {
						cancel()
					}
					return json.RawMessage(`{}`), nil
				},
				Map: func(json.RawMessage) []types.Record { return nil },
			}
		}
		s := New([]Source{mkSrc("a", true), mkSrc("b", false)}, sink, time.Minute)

		s.runCycle(runCtx)

		assert.Equal(t, []string{"a"}, ran, "the in-flight step finishes, the next never starts")
	})
}
