package main

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ladderboard.ai/internal/cycle"
	"ladderboard.ai/internal/transport/feed"
)

type staticReports []cycle.Report

func (s staticReports) RecentReports(context.Context, string, int) ([]cycle.Report, error) {
	return s, nil
}

type staticFeed feed.Stats

func (s staticFeed) Stats() feed.Stats { return feed.Stats(s) }

func TestMetricsHandler(t *testing.T) {
	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	reports := staticReports{
		{Board: "val", StartedAt: now, Total: 60, Shown: 30, Degraded: true, Length: 1980},
		{Board: "rl", StartedAt: now, Total: 4, Shown: 4, Error: "fetch: boom"},
		{Board: "val", StartedAt: now.Add(-time.Hour), Total: 1, Shown: 1},
	}
	srv := httptest.NewServer(metricsHandler(reports, staticFeed{Connections: 2, Fetches: 7}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	body := string(b)
	for _, want := range []string{
		"ladderboard_feed_connections_total 2",
		`ladderboard_feed_requests_total{type="fetch"} 7`,
		`ladderboard_board_entities{board="val"} 60`,
		`ladderboard_board_degraded{board="val"} 1`,
		`ladderboard_board_last_error{board="rl"} 1`,
		`ladderboard_board_shown{board="rl"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}
