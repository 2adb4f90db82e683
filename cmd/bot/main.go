package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"ladderboard.ai/internal/board/updates"
	"ladderboard.ai/internal/transport/feed"
)

var tiers = []string{"Iron", "Bronze", "Silver", "Gold", "Platinum", "Diamond", "Ascendant", "Immortal", "Radiant"}

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/feed", "feed websocket url")
		name    = flag.String("name", "bot", "client name")
		channel = flag.String("channel", "", "channel to post to (required)")
		author  = flag.String("author", "", "author id (default: client name)")
		players = flag.Int("players", 10, "number of simulated players")
		every   = flag.Duration("every", 2*time.Second, "delay between posts")
		count   = flag.Int("count", 0, "stop after this many posts (0: until interrupted)")
		seed    = flag.Int64("seed", 0, "random seed (0: time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if strings.TrimSpace(*channel) == "" {
		logger.Fatalf("missing -channel")
	}
	if *players <= 0 {
		*players = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, err := feed.Dial(ctx, *url, *name, os.Getenv("LB_FEED_TOKEN"))
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer c.Close()
	logger.Printf("WELCOME channels=%v max_fetch=%d", c.Welcome.Channels, c.Welcome.MaxFetchLimit)

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	sim := newLadder(rand.New(rand.NewSource(s)), *players)

	for sent := 0; *count == 0 || sent < *count; sent++ {
		line := sim.next(time.Now().UTC())
		id, err := c.Post(ctx, *channel, *author, line)
		if err != nil {
			logger.Printf("post: %v", err)
			return
		}
		logger.Printf("posted id=%s %s", id, line)

		select {
		case <-ctx.Done():
			return
		case <-time.After(*every):
		}
	}
}

type player struct {
	id   string
	tier int
	mmr  int
	peak int
}

// ladder random-walks player ratings and emits one update per call.
type ladder struct {
	r       *rand.Rand
	players []player
}

func newLadder(r *rand.Rand, n int) *ladder {
	l := &ladder{r: r}
	for i := 0; i < n; i++ {
		mmr := 800 + r.Intn(1600)
		l.players = append(l.players, player{
			id:   fmt.Sprintf("%d", 100000000000000000+r.Int63n(899999999999999999)),
			tier: mmr * len(tiers) / 3000,
			mmr:  mmr,
			peak: mmr,
		})
	}
	return l
}

func (l *ladder) next(now time.Time) string {
	p := &l.players[l.r.Intn(len(l.players))]
	p.mmr += l.r.Intn(61) - 30
	if p.mmr < 0 {
		p.mmr = 0
	}
	if p.mmr > p.peak {
		p.peak = p.mmr
	}
	p.tier = p.mmr * len(tiers) / 3000
	if p.tier >= len(tiers) {
		p.tier = len(tiers) - 1
	}
	peakTier := p.peak * len(tiers) / 3000
	if peakTier >= len(tiers) {
		peakTier = len(tiers) - 1
	}
	return fmt.Sprintf("%s <@%s> %s %d %s %d %s",
		updates.DefaultPrefix, p.id, tiers[p.tier], p.mmr, tiers[peakTier], p.peak, now.Format("2006-01-02"))
}
