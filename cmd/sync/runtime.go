package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"ladderboard.ai/internal/board/render"
	"ladderboard.ai/internal/cycle"
	"ladderboard.ai/internal/persistence/r2s3"
	"ladderboard.ai/internal/persistence/sqlitestore"
	"ladderboard.ai/internal/transport/feed"
	"ladderboard.ai/internal/transport/webhook"
)

type runtimeConfig struct {
	Backend string
	Source  string
	Names   string
	FeedURL string
	APIURL  string
	DataDir string
}

type syncRuntime struct {
	store  cycle.Store
	source cycle.Source
	names  render.NameResolver
	mirror *r2MirrorRuntime

	feed *feed.Client
}

func (r *syncRuntime) Close() {
	if r.feed != nil {
		_ = r.feed.Close()
		r.feed = nil
	}
	r.mirror.Close()
	r.mirror = nil
}

func buildRuntime(ctx context.Context, cfg runtimeConfig, db *sqlitestore.Store, logger *log.Logger) (*syncRuntime, error) {
	rt := &syncRuntime{}

	var api *webhook.Client
	apiClient := func() (*webhook.Client, error) {
		if api != nil {
			return api, nil
		}
		c, err := webhook.New(cfg.APIURL, os.Getenv("LB_BOT_TOKEN"))
		if err != nil {
			return nil, err
		}
		api = c
		return api, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "sqlite":
		rt.store = db
	case "r2":
		client, prefix, err := r2ClientFromEnv()
		if err != nil {
			return nil, err
		}
		rt.store = r2s3.NewContainerStore(client, prefix)
	case "webhook":
		c, err := apiClient()
		if err != nil {
			return nil, err
		}
		st, err := webhook.NewContainerStore(c, os.Getenv("LB_WEBHOOK_ID"), os.Getenv("LB_WEBHOOK_TOKEN"))
		if err != nil {
			return nil, fmt.Errorf("webhook backend: %w", err)
		}
		rt.store = st
	default:
		return nil, fmt.Errorf("unknown -backend %q", cfg.Backend)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", "sqlite":
		rt.source = db
	case "feed":
		fc, err := feed.Dial(ctx, cfg.FeedURL, "sync", os.Getenv("LB_FEED_TOKEN"))
		if err != nil {
			return nil, err
		}
		rt.feed = fc
		rt.source = fc
		logger.Printf("feed connected url=%s channels=%v", cfg.FeedURL, fc.Welcome.Channels)
	case "webhook":
		c, err := apiClient()
		if err != nil {
			return nil, err
		}
		rt.source = c
	default:
		return nil, fmt.Errorf("unknown -source %q", cfg.Source)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Names)) {
	case "", "sqlite":
		rt.names = db
	case "webhook":
		c, err := apiClient()
		if err != nil {
			return nil, err
		}
		rt.names = webhook.NewMemberResolver(c, os.Getenv("LB_GUILD_ID"))
	case "none":
	default:
		return nil, fmt.Errorf("unknown -names %q", cfg.Names)
	}

	m, err := buildR2MirrorRuntime(cfg.DataDir, logger)
	if err != nil {
		if rt.feed != nil {
			_ = rt.feed.Close()
		}
		return nil, err
	}
	rt.mirror = m
	return rt, nil
}
