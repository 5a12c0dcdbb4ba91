package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rendis/stratagem/internal/counts"
	"github.com/rendis/stratagem/internal/dirty"
	"github.com/rendis/stratagem/internal/logging"
	"github.com/rendis/stratagem/internal/scheduler"
	"github.com/rendis/stratagem/internal/session"
	"github.com/rendis/stratagem/internal/store"
	"github.com/rendis/stratagem/internal/streaming"
	"github.com/rendis/stratagem/internal/transform"
	"github.com/rendis/stratagem/internal/validation"
	"github.com/rendis/stratagem/pkg/mcp"
	"github.com/rendis/stratagem/pkg/schema"
)

func main() {
	cfg := loadConfig()

	// stdout carries the MCP stdio transport, so logs go to stderr.
	handler := logging.NewCorrelationHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	logger := slog.New(handler)

	if err := run(cfg, logger); err != nil {
		logger.Error("stratagem exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	registry, err := transform.NewRegistry()
	if err != nil {
		return err
	}
	validator, err := validation.NewStrategyValidator(registry)
	if err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()
	tracker := dirty.NewTracker()
	sess := session.New(nil)

	var countSvc *counts.Service
	if cfg.CountEndpoint != "" {
		fetcher := counts.NewHTTPFetcher(cfg.CountEndpoint, cfg.AuthToken, 0)
		countSvc = counts.NewService(fetcher, logger,
			counts.WithDebounce(time.Duration(cfg.DebounceMS)*time.Millisecond))

		sched, schedErr := scheduler.NewScheduler(st, countSvc, cfg.RefreshCron, logger)
		if schedErr != nil {
			return schedErr
		}
		if startErr := sched.Start(ctx); startErr != nil {
			return startErr
		}
		defer sched.Stop()
	}

	if cfg.StreamEndpoint != "" {
		startStream(ctx, cfg, sess, hub, tracker, countSvc, st, validator, logger)
	}

	deps := mcp.StratagemServerDeps{
		Store:     st,
		Validator: validator,
		Tracker:   tracker,
		Filters:   registry,
		Live:      sess.Latest,
		Logger:    logger,
	}
	if countSvc != nil {
		deps.Counts = countSvc
	}
	srv := mcp.NewStratagemServer(deps)

	logger.Info("stratagem serving on stdio",
		slog.String("db", cfg.DBPath),
		slog.Bool("streaming", cfg.StreamEndpoint != ""),
		slog.Bool("counts", cfg.CountEndpoint != ""))

	if serveErr := srv.Serve(ctx); serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

// startStream connects the SSE client to the session runner. A failed health
// probe downgrades to MCP-only operation instead of aborting startup.
func startStream(ctx context.Context, cfg Config, sess *session.Session,
	hub streaming.EventHub, tracker *dirty.Tracker, countSvc *counts.Service,
	st store.Store, validator *validation.StrategyValidator, logger *slog.Logger) {

	client := streaming.NewClient(cfg.StreamEndpoint, cfg.AuthToken)
	if !client.Healthy(ctx) {
		logger.Warn("stream backend unhealthy, running without live updates",
			slog.String("endpoint", cfg.StreamEndpoint))
		return
	}

	runner := &session.Runner{
		Session:   sess,
		Hub:       hub,
		Tracker:   tracker,
		Counts:    countSvc,
		Payloads:  validator,
		Events:    st,
		Baselines: st,
		Logger:    logger,
	}

	records := make(chan schema.StreamRecord, 64)
	go func() {
		defer close(records)
		if err := client.Stream(ctx, sess.ID, records); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("stream ended", slog.String("error", err.Error()))
		}
	}()
	go func() {
		if err := runner.Run(ctx, records); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("session runner stopped", slog.String("error", err.Error()))
		}
	}()
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
