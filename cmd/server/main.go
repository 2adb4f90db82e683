package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"ladderboard.ai/internal/boards"
	"ladderboard.ai/internal/persistence/sqlitestore"
	"ladderboard.ai/internal/transport/feed"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "./configs/boards.yaml", "boards config path (its channels are the ones served)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		dbPath     = flag.String("db", "", "sqlite path (default: <data>/boards.sqlite)")
		anyChannel = flag.Bool("any_channel", false, "serve every channel, not only configured ones")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "boards.sqlite")
	}
	db, err := sqlitestore.Open(path)
	if err != nil {
		logger.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	var channels []string
	if !*anyChannel {
		channels, err = configuredChannels(*configPath)
		if err != nil {
			logger.Fatalf("load boards config: %v", err)
		}
		logger.Printf("serving channels=%v", channels)
	}

	feedSrv := feed.NewServer(db, channels, strings.TrimSpace(os.Getenv("LB_FEED_TOKEN")), logger)

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(db, feedSrv))
	if envBool("LB_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/feed", feedSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// configuredChannels returns the channels of all active boards. Boards may also come from
// LB_BOARD_* variables, so a missing file is not an error.
func configuredChannels(path string) ([]string, error) {
	cfg, err := boards.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = boards.Load("")
	}
	if err != nil {
		return nil, err
	}
	boards.ApplyEnv(&cfg, os.Environ())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var out []string
	seen := map[string]bool{}
	for _, b := range cfg.Active() {
		if !seen[b.Channel] {
			seen[b.Channel] = true
			out = append(out, b.Channel)
		}
	}
	return out, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
