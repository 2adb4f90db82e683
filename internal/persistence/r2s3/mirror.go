package r2s3

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Tally summarises what a Mirror has done with the backups handed to it.
type Tally struct {
	Queued   uint64
	Uploaded uint64
	Failed   uint64
	Dropped  uint64
	Skipped  uint64
}

func (t Tally) String() string {
	return fmt.Sprintf("queued=%d uploaded=%d failed=%d dropped=%d skipped=%d",
		t.Queued, t.Uploaded, t.Failed, t.Dropped, t.Skipped)
}

// Mirror copies container backups from the data dir to the bucket off the sync path.
// A backup at <data>/boards/<id>/snapshots/<file> is stored at <prefix>/boards/<id>/snapshots/<file>.
type Mirror struct {
	client  *Client
	dataDir string
	prefix  string
	logger  *log.Logger

	backups     chan string
	waitFull    time.Duration
	maxAttempts int
	backoff     func(attempt int) time.Duration
	timeout     time.Duration
	workers     sync.WaitGroup

	queued, uploaded, failed, dropped, skipped atomic.Uint64
}

func NewMirror(client *Client, dataDir, prefix string, workers, queueCapacity int, logger *log.Logger) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 256
	}
	m := &Mirror{
		client:      client,
		dataDir:     dataDir,
		prefix:      strings.Trim(filepath.ToSlash(prefix), "/"),
		logger:      logger,
		backups:     make(chan string, queueCapacity),
		waitFull:    250 * time.Millisecond,
		maxAttempts: 4,
		backoff:     func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
		timeout:     time.Minute,
	}
	m.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go m.run()
	}
	return m
}

// Enqueue hands a freshly written backup to the upload workers. When the queue stays full
// the upload is dropped; the local file is untouched.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil || m.client == nil {
		return
	}
	m.queued.Add(1)
	select {
	case m.backups <- localPath:
		return
	default:
	}
	t := time.NewTimer(m.waitFull)
	defer t.Stop()
	select {
	case m.backups <- localPath:
	case <-t.C:
		m.dropped.Add(1)
		m.printf("r2 mirror queue full, dropped backup %s", localPath)
	}
}

// Close drains queued backups and stops the workers.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.backups)
	m.workers.Wait()
}

func (m *Mirror) Tally() Tally {
	if m == nil {
		return Tally{}
	}
	return Tally{
		Queued:   m.queued.Load(),
		Uploaded: m.uploaded.Load(),
		Failed:   m.failed.Load(),
		Dropped:  m.dropped.Load(),
		Skipped:  m.skipped.Load(),
	}
}

func (m *Mirror) run() {
	defer m.workers.Done()
	for p := range m.backups {
		key, err := m.keyFor(p)
		if err != nil {
			m.skipped.Add(1)
			m.printf("r2 mirror skip %s: %v", p, err)
			continue
		}
		if err := m.upload(key, p); err != nil {
			m.failed.Add(1)
			m.printf("r2 mirror backup %s -> %s failed: %v", p, key, err)
			continue
		}
		m.uploaded.Add(1)
		m.printf("r2 mirror backup %s -> %s", p, key)
	}
}

func (m *Mirror) upload(key, localPath string) error {
	var err error
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err = m.client.PutFile(ctx, key, localPath)
		cancel()
		if err == nil || attempt >= m.maxAttempts {
			return err
		}
		time.Sleep(m.backoff(attempt))
	}
}

// keyFor maps a backup path under the data dir to its object key.
func (m *Mirror) keyFor(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty path")
	}
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("not under data dir %s", base)
	}
	if m.prefix == "" {
		return rel, nil
	}
	return path.Join(m.prefix, rel), nil
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
