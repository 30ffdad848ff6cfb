package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/condorsolar/condor/pkg/enphase"
	"github.com/condorsolar/condor/pkg/ingest"
	"github.com/condorsolar/condor/pkg/log"
	"github.com/condorsolar/condor/pkg/server"
	"github.com/condorsolar/condor/pkg/sink"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	gw := enphase.Configured()
	influx := sink.Configured()
	sched := ingest.Configured(gw, influx)
	srv := server.Configured(sched)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	log.SetDefaultLogLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// release transport and sink connections regardless of how the loop
	// exits
	defer func() {
		gw.Client.Close()
		if err := influx.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close sink", "error", err)
		}
	}()

	// a dead sink aborts the process before the loop starts
	if err := influx.Ping(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "sink unreachable", "error", err)
		os.Exit(1)
	}

	if err := srv.Start(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "ops server failed to start", "error", err)
		os.Exit(1)
	}

	if err := sched.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "ingestion loop failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "exited cleanly")
}
