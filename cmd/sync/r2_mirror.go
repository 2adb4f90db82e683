package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"ladderboard.ai/internal/persistence/r2s3"
)

type r2MirrorRuntime struct {
	enabled bool
	mirror  *r2s3.Mirror
}

func r2ClientFromEnv() (*r2s3.Client, string, error) {
	endpoint := strings.TrimSpace(os.Getenv("LB_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("LB_R2_BUCKET"))
	accessKeyID := strings.TrimSpace(os.Getenv("LB_R2_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("LB_R2_SECRET_ACCESS_KEY"))
	prefix := strings.TrimSpace(os.Getenv("LB_R2_PREFIX"))

	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, "", fmt.Errorf("LB_R2_ENDPOINT/LB_R2_BUCKET/LB_R2_ACCESS_KEY_ID/LB_R2_SECRET_ACCESS_KEY are not fully set")
	}
	client, err := r2s3.New(endpoint, bucket, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, "", err
	}
	return client, prefix, nil
}

// buildR2MirrorRuntime mirrors container backups to R2 when LB_R2_MIRROR=true.
func buildR2MirrorRuntime(dataDir string, logger *log.Logger) (*r2MirrorRuntime, error) {
	if !envBool("LB_R2_MIRROR", false) {
		return &r2MirrorRuntime{enabled: false}, nil
	}
	client, prefix, err := r2ClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("LB_R2_MIRROR=true but %w", err)
	}
	workers := envInt("LB_R2_UPLOAD_WORKERS", 2)
	queue := envInt("LB_R2_QUEUE", 256)
	return &r2MirrorRuntime{
		enabled: true,
		mirror:  r2s3.NewMirror(client, dataDir, prefix, workers, queue, logger),
	}, nil
}

func (r *r2MirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
	r.mirror = nil
}

// Tally is zero when mirroring is disabled.
func (r *r2MirrorRuntime) Tally() r2s3.Tally {
	if r == nil || r.mirror == nil {
		return r2s3.Tally{}
	}
	return r.mirror.Tally()
}

func (r *r2MirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}
