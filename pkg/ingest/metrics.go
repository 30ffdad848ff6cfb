package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	cyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "condor_cycles_total",
		Help: "Completed poll cycles.",
	})
	sourceErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "condor_source_errors_total",
		Help: "Fetch failures per source; the cycle continues with the remaining sources.",
	}, []string{"source"})
	recordsWrittenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "condor_records_written_total",
		Help: "Records accepted by the sink, per measurement.",
	}, []string{"measurement"})
	writeErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "condor_write_errors_total",
		Help: "Records the sink rejected.",
	})
	liveStreamSkipsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "condor_livestream_skips_total",
		Help: "Cycles that skipped live data because the stream stayed disabled after one enable attempt.",
	})
)

func init() {
	prometheus.MustRegister(cyclesTotal, sourceErrorsTotal, recordsWrittenTotal,
		writeErrorsTotal, liveStreamSkipsTotal)
}
