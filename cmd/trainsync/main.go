package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainsync/internal/config"
	"trainsync/internal/ics"
	"trainsync/internal/importer"
	"trainsync/internal/log"
	"trainsync/internal/scheduler"
	"trainsync/internal/store"
	"trainsync/internal/web"
)

type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	memoryStore bool
}

func main() {
	flags := parseFlags()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		log.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}
	log.SetLevelString(cfg.LogLevel)

	log.Info("trainsync starting",
		"listen", cfg.Listen,
		"refresh", cfg.RefreshCron,
		"teams", len(cfg.Teams),
		"lookahead_days", cfg.ImportLookaheadDays,
		"retention_days", cfg.RetentionDays,
		"once", flags.once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	st, err := openStore(ctx, flags.memoryStore)
	if err != nil {
		log.Error("failed to open store", err)
		os.Exit(1)
	}
	defer st.Close()

	fetcher := ics.NewFetcher(cfg.CacheDir, time.Duration(cfg.FetchTimeoutSeconds)*time.Second)
	imp := importer.New(st, &ics.RRuleExpander{},
		importer.WithWindow(
			time.Duration(cfg.ImportLookbackDays)*24*time.Hour,
			time.Duration(cfg.ImportLookaheadDays)*24*time.Hour,
		),
		importer.WithRetention(time.Duration(cfg.RetentionDays)*24*time.Hour),
	)

	sched := scheduler.New(cfg, imp, fetcher)

	if flags.once {
		sched.RunCycle(ctx)
		return
	}

	if err := sched.Start(ctx); err != nil {
		log.Error("failed to start import scheduler", err, "cron", cfg.RefreshCron)
		os.Exit(1)
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           web.NewServer(cfg, st, imp, fetcher).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", err)
		}
	}()

	log.Info("HTTP server listening", "listen", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("HTTP server failed", err)
		os.Exit(1)
	}

	log.Info("trainsync exiting")
}

func openStore(ctx context.Context, memory bool) (store.Store, error) {
	if memory {
		log.Info("using in-memory store")
		return store.NewMemoryStore(), nil
	}
	return store.NewFirestoreStore(ctx)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/trainsync/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one import cycle over all team feeds and exit")
	flag.BoolVar(&cfg.memoryStore, "memory", false, "Use the in-memory store instead of Firestore (development)")

	flag.Parse()

	return cfg
}
