package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"ladderboard.ai/internal/cycle"
	"ladderboard.ai/internal/transport/feed"
)

type reportSource interface {
	RecentReports(ctx context.Context, board string, limit int) ([]cycle.Report, error)
}

type feedStats interface {
	Stats() feed.Stats
}

// metricsHandler exposes feed counters and the most recent cycle report per board.
func metricsHandler(reports reportSource, fs feedStats) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		st := fs.Stats()
		fmt.Fprintf(rw, "# HELP ladderboard_feed_connections_total Feed websocket connections accepted.\n")
		fmt.Fprintf(rw, "# TYPE ladderboard_feed_connections_total counter\n")
		fmt.Fprintf(rw, "ladderboard_feed_connections_total %d\n", st.Connections)
		fmt.Fprintf(rw, "# HELP ladderboard_feed_requests_total Feed requests served.\n")
		fmt.Fprintf(rw, "# TYPE ladderboard_feed_requests_total counter\n")
		fmt.Fprintf(rw, "ladderboard_feed_requests_total{type=\"fetch\"} %d\n", st.Fetches)
		fmt.Fprintf(rw, "ladderboard_feed_requests_total{type=\"post\"} %d\n", st.Posts)
		fmt.Fprintf(rw, "ladderboard_feed_requests_total{type=\"error\"} %d\n", st.Errors)

		recent, err := reports.RecentReports(ctx, "", 500)
		if err != nil {
			fmt.Fprintf(rw, "# reports unavailable: %v\n", err)
			return
		}
		latest := map[string]cycle.Report{}
		for _, rep := range recent {
			if _, ok := latest[rep.Board]; !ok {
				latest[rep.Board] = rep
			}
		}
		ids := make([]string, 0, len(latest))
		for id := range latest {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		gauge := func(name, help string, value func(cycle.Report) float64) {
			fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
			for _, id := range ids {
				fmt.Fprintf(rw, "%s{board=%q} %g\n", name, id, value(latest[id]))
			}
		}
		gauge("ladderboard_board_entities", "Entities in the last rendered container.", func(r cycle.Report) float64 { return float64(r.Total) })
		gauge("ladderboard_board_shown", "Entities kept after overflow degradation.", func(r cycle.Report) float64 { return float64(r.Shown) })
		gauge("ladderboard_board_degraded", "1 if the last render dropped entities to fit.", func(r cycle.Report) float64 { return boolf(r.Degraded) })
		gauge("ladderboard_board_container_length", "Rendered container length in characters.", func(r cycle.Report) float64 { return float64(r.Length) })
		gauge("ladderboard_board_last_error", "1 if the last pass reported an error.", func(r cycle.Report) float64 { return boolf(r.Error != "") })
		gauge("ladderboard_board_last_pass_timestamp_seconds", "Start time of the last pass.", func(r cycle.Report) float64 { return float64(r.StartedAt.Unix()) })
		gauge("ladderboard_board_last_pass_failed_updates", "Malformed updates seen in the last pass.", func(r cycle.Report) float64 { return float64(r.Failed) })
	}
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
