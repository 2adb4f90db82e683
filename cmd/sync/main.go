package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ladderboard.ai/internal/cycle"
	persistlog "ladderboard.ai/internal/persistence/log"
	"ladderboard.ai/internal/persistence/snapshot"
	"ladderboard.ai/internal/persistence/sqlitestore"
)

func main() {
	if !run() {
		os.Exit(1)
	}
}

// run returns false when a one-shot pass had errors.
func run() bool {
	var (
		configPath = flag.String("config", "./configs/boards.yaml", "boards config path")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		dbPath     = flag.String("db", "", "sqlite path (default: <data>/boards.sqlite)")
		backend    = flag.String("backend", "sqlite", "container backend: sqlite|r2|webhook")
		source     = flag.String("source", "sqlite", "message source: sqlite|feed|webhook")
		names      = flag.String("names", "sqlite", "display name resolver: sqlite|webhook|none")
		feedURL    = flag.String("feed_url", "ws://127.0.0.1:8080/v1/feed", "feed server websocket url (source=feed)")
		apiURL     = flag.String("api_url", "https://discord.com/api/v10", "chat platform REST base url (webhook backend/source)")
		loopEvery  = flag.Duration("loop", 0, "run a pass every interval until interrupted (0: one pass and exit)")
		keep       = flag.Int("keep_backups", 50, "container backups kept per board (0: keep all)")
		noBackups  = flag.Bool("disable_backups", false, "do not back up containers before overwriting")
		noLog      = flag.Bool("disable_log", false, "do not write the compressed cycle log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[sync] ", log.LstdFlags|log.Lmicroseconds)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "boards.sqlite")
	}
	db, err := sqlitestore.Open(path)
	if err != nil {
		logger.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, runtimeConfig{
		Backend: *backend,
		Source:  *source,
		Names:   *names,
		FeedURL: *feedURL,
		APIURL:  *apiURL,
		DataDir: *dataDir,
	}, db, logger)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}
	defer rt.Close()

	sinks := []cycle.ReportSink{db}
	if !*noLog {
		cl := persistlog.NewCycleLogger(*dataDir)
		defer cl.Close()
		sinks = append(sinks, cl)
	}
	var archiver cycle.Archiver
	if !*noBackups {
		archiver = &snapshot.Archiver{DataDir: *dataDir, Keep: *keep, OnWrite: rt.mirror.Enqueue}
	}

	pass := func() bool {
		cfg, err := loadConfig(*configPath, os.Environ())
		if err != nil {
			logger.Printf("load config: %v", err)
			return false
		}
		reg := cycle.Registry{
			Config:   cfg,
			Source:   rt.source,
			Store:    rt.store,
			Archiver: archiver,
			Names:    rt.names,
			Sinks:    sinks,
		}
		reports := cycle.NewRunner(reg, logger).RunAll(ctx)
		tot := cycle.Sum(reports)
		logger.Printf("pass done boards=%d errors=%d fetched=%d parsed=%d failed=%d inserted=%d updated=%d stale=%d degraded=%d",
			tot.Boards, tot.Errors, tot.Fetched, tot.Parsed, tot.Failed, tot.Inserted, tot.Updated, tot.Stale, tot.Degraded)
		if rt.mirror != nil && rt.mirror.enabled {
			logger.Printf("r2 mirror %s", rt.mirror.Tally())
		}
		return tot.Errors == 0
	}

	if *loopEvery <= 0 {
		return pass()
	}

	t := time.NewTicker(*loopEvery)
	defer t.Stop()
	for {
		pass()
		select {
		case <-ctx.Done():
			logger.Printf("shutting down")
			return true
		case <-t.C:
		}
	}
}
