package main

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"ladderboard.ai/internal/boards"
)

// loadConfig reads boards.yaml and overlays LB_BOARD_* variables. A missing file is fine when the
// environment describes every board.
func loadConfig(path string, environ []string) (boards.Config, error) {
	cfg, err := boards.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = boards.Load("")
	}
	if err != nil {
		return cfg, err
	}
	boards.ApplyEnv(&cfg, environ)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
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

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
