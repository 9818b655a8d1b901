package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftguard/driftguard/internal/alerts"
	"github.com/driftguard/driftguard/internal/api"
	"github.com/driftguard/driftguard/internal/auth"
	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/pipeline"
	"github.com/driftguard/driftguard/internal/receiver"
	"github.com/driftguard/driftguard/internal/scraper"
	"github.com/driftguard/driftguard/internal/store"
	"github.com/driftguard/driftguard/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("driftguard starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"channels", len(cfg.Monitor.Channels),
		"groups", len(cfg.Monitor.Groups),
		"scrape_interval", cfg.Monitor.ScrapeInterval,
		"http_port", cfg.Server.HTTPPort,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Monitor pipeline: one drift + liveness monitor per channel, one voter
	// per redundancy group.
	engine, scrapers := buildEngine(cfg)

	// Snapshot store with background TTL eviction.
	st := store.New(cfg.Monitor.SnapshotTTL)
	go st.Run(ctx)

	// Alerts engine — evaluates rules on every snapshot.
	alertEngine := alerts.New(cfg.Server.Alerts)

	// Watch config file for hot-reload. Rule and channel changes need a
	// restart; reloads are logged so operators see that the file changed.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			slog.Info("config hot-reloaded — channel changes take effect on restart",
				"channels", len(updated.Monitor.Channels))
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Scrape loop: poll every ScrapeInterval, feed the pipeline, vote, alert.
	go runScrapeLoop(ctx, cfg.Monitor.ScrapeInterval, engine, scrapers, st, alertEngine)

	// WebSocket hub — broadcasts snapshots to UI clients.
	hub := ws.New(st, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)

	// Combined HTTP server: REST API + push ingest + WebSocket hub.
	authMW := auth.APIKeyMiddleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)
	mux := http.NewServeMux()
	mux.Handle("/api/v1/observations", receiver.New(engine, st, alertEngine))
	mux.Handle("/api/", api.New(st, alertEngine, engine))
	mux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: authMW(mux),
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("driftguard shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}

// buildEngine constructs the pipeline engine and the scrapers for every
// channel that has an endpoint. Push-only channels are registered with the
// engine but get no scraper.
func buildEngine(cfg *config.Config) (*pipeline.Engine, []*scraper.Scraper) {
	engine := pipeline.New()
	var scrapers []*scraper.Scraper

	for _, ch := range cfg.Monitor.Channels {
		dc, err := ch.Drift.Build()
		if err != nil {
			// validate() already vetted this; a failure here is a bug.
			slog.Error("skipping channel — drift config", "channel", ch.ID, "err", err)
			continue
		}
		spec := pipeline.ChannelSpec{
			ID:              ch.ID,
			Drift:           dc,
			LivenessTimeout: uint64(ch.LivenessTimeout.Milliseconds()),
			MissThreshold:   ch.MissThreshold,
		}
		if err := engine.AddChannel(spec); err != nil {
			slog.Error("skipping channel", "channel", ch.ID, "err", err)
			continue
		}

		if ch.Endpoint == "" {
			slog.Info("registered push-only channel", "id", ch.ID)
			continue
		}
		s, err := scraper.New(ch)
		if err != nil {
			slog.Error("skipping scraper — could not build", "channel", ch.ID, "err", err)
			continue
		}
		scrapers = append(scrapers, s)
		slog.Info("registered channel", "id", ch.ID, "endpoint", ch.Endpoint, "metric", ch.Metric)
	}

	for _, g := range cfg.Monitor.Groups {
		vc, err := g.Build()
		if err != nil {
			slog.Error("skipping group — vote config", "group", g.ID, "err", err)
			continue
		}
		spec := pipeline.GroupSpec{ID: g.ID, Vote: vc}
		copy(spec.Channels[:], g.Channels)
		if err := engine.AddGroup(spec); err != nil {
			slog.Error("skipping group", "group", g.ID, "err", err)
			continue
		}
		slog.Info("registered group", "id", g.ID, "channels", g.Channels)
	}

	return engine, scrapers
}

// runScrapeLoop polls all scraped channels on every tick, feeds readings
// (or misses) into the pipeline, stores the snapshots, evaluates alerts,
// and runs the group votes.
func runScrapeLoop(
	ctx context.Context,
	interval time.Duration,
	engine *pipeline.Engine,
	scrapers []*scraper.Scraper,
	st *store.Store,
	alertEngine *alerts.Engine,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, s := range scrapers {
				r := s.Scrape(ctx)

				if r.Err != nil {
					slog.Warn("scrape failed", "channel", r.ChannelID, "err", r.Err)
					sn, err := engine.ObserveMiss(r.ChannelID, r.Err, now)
					if err != nil {
						continue
					}
					st.Put(sn)
					alertEngine.Evaluate(sn)
					continue
				}

				sn, err := engine.Observe(r.ChannelID, r.Value, now)
				if err != nil {
					slog.Error("observe failed", "channel", r.ChannelID, "err", err)
					continue
				}
				st.Put(sn)
				alertEngine.Evaluate(sn)
			}

			for _, g := range engine.Vote(now) {
				st.PutGroup(g)
				alertEngine.EvaluateGroup(g)
			}
		}
	}
}
