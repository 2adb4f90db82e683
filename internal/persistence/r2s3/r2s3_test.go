package r2s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	fails   int
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), sigV4Algorithm+" Credential=AK/") {
		http.Error(w, "unsigned", http.StatusForbidden)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		if b.fails > 0 {
			b.fails--
			http.Error(w, "slow down", http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		sum := sha256.Sum256(body)
		if r.Header.Get("x-amz-content-sha256") != hex.EncodeToString(sum[:]) {
			http.Error(w, "bad hash", http.StatusBadRequest)
			return
		}
		b.objects[r.URL.Path] = body
	case http.MethodGet:
		body, ok := b.objects[r.URL.Path]
		if !ok {
			http.Error(w, "<Error><Code>NoSuchKey</Code></Error>", http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFake(t *testing.T) (*fakeBucket, *Client) {
	t.Helper()
	fb := &fakeBucket{objects: map[string][]byte{}}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "lb", "AK", "SK")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return fb, c
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New("example.com", "", "a", "b"); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	c, err := New("example.com", "b", "a", "s")
	if err != nil || c.endpoint != "https://example.com" {
		t.Fatalf("endpoint defaulting: %+v %v", c, err)
	}
}

func TestContainerStore_SaveLoad(t *testing.T) {
	fb, c := newFake(t)
	s := NewContainerStore(c, "/prod/")
	ctx := context.Background()

	if _, found, err := s.Load(ctx, "m1"); err != nil || found {
		t.Fatalf("missing object: found=%v err=%v", found, err)
	}
	if err := s.Save(ctx, "m1", "[DATA:v1]\nLAST:none\n[/DATA]"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := fb.objects["/lb/prod/containers/m1.txt"]; !ok {
		t.Fatalf("object key: %v", fb.objects)
	}
	text, found, err := s.Load(ctx, "m1")
	if err != nil || !found || !strings.HasPrefix(text, "[DATA:v1]") {
		t.Fatalf("load: %q %v %v", text, found, err)
	}
	if err := s.Save(ctx, "../x", "y"); err == nil {
		t.Fatalf("expected invalid container name to be rejected")
	}
}

func TestGetObject_NotFound(t *testing.T) {
	_, c := newFake(t)
	_, err := c.GetObject(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMirror_UploadsBackupsWithRetry(t *testing.T) {
	fb, c := newFake(t)
	fb.fails = 1
	dataDir := t.TempDir()
	local := filepath.Join(dataDir, "boards", "val", "snapshots", "20260214T120000-000000000.txt.zst")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(local, []byte("backup"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMirror(c, dataDir, "backups", 1, 4, nil)
	m.backoff = func(int) time.Duration { return time.Millisecond }
	m.Enqueue(local)
	m.Enqueue(filepath.Join(t.TempDir(), "outside.txt.zst"))
	m.Close()

	got := m.Tally()
	if got.Queued != 2 || got.Uploaded != 1 || got.Skipped != 1 || got.Failed != 0 {
		t.Fatalf("tally: %s", got)
	}
	body := string(fb.objects["/lb/backups/boards/val/snapshots/20260214T120000-000000000.txt.zst"])
	if body != "backup" {
		t.Fatalf("uploaded body: %q (objects=%v)", body, fb.objects)
	}
}
