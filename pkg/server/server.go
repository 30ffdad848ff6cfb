// Package server exposes the ops surface: health, Prometheus metrics,
// and a JSON snapshot of the most recent poll cycle.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/condorsolar/condor/pkg/ingest"
	"github.com/condorsolar/condor/pkg/log"
	"github.com/levenlabs/go-lflag"
)

// Server is the optional ops HTTP server. It observes the scheduler; it
// never drives it.
type Server struct {
	listenAddr string
	sched      *ingest.Scheduler
	httpServer *http.Server
}

// Configured sets up the ops server from flags. An empty listen address
// disables it entirely.
func Configured(sched *ingest.Scheduler) *Server {
	listenAddr := lflag.String("ops-listen", "", "Ops HTTP server listen address (e.g. :9090). Empty disables it")

	srv := &Server{sched: sched}
	lflag.Do(func() {
		srv.listenAddr = *listenAddr
	})
	return srv
}

// Start begins serving in the background and shuts down when ctx is
// canceled. It returns immediately; a listen failure is returned so main
// can abort before the loop starts.
func (s *Server) Start(ctx context.Context) error {
	if s.listenAddr == "" {
		log.Ctx(ctx).DebugContext(ctx, "ops server disabled")
		return nil
	}

	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Handler: s.routes()}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Ctx(ctx).ErrorContext(ctx, "ops server failed", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Ctx(ctx).InfoContext(ctx, "ops server listening", slog.String("addr", s.listenAddr))
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/status", gziphandler.GzipHandler(http.HandlerFunc(s.handleStatus)))
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type statusResponse struct {
		Status    string              `json:"status"`
		LastCycle *ingest.CycleStatus `json:"last_cycle,omitempty"`
	}

	resp := statusResponse{Status: "ok"}
	if st := s.sched.Status(); st != nil {
		resp.LastCycle = st
	} else {
		resp.Status = "starting"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "failed to encode status", slog.Any("error", err))
	}
}
