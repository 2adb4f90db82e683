// Package snapshot keeps compressed copies of container text taken just before a container is
// overwritten, so a bad pass can be rolled back with the admin tool.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"ladderboard.ai/internal/board/statecodec"
)

const fileSuffix = ".txt.zst"

type Header struct {
	Version   int    `json:"version"`
	Board     string `json:"board"`
	Container string `json:"container"`
	Cursor    string `json:"cursor,omitempty"`
	SavedAt   string `json:"saved_at"`
}

type ContainerV1 struct {
	Header Header
	Text   string
}

func WriteContainerSnapshot(path string, snap ContainerV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 32*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if _, err := bw.WriteString(snap.Text); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadContainerSnapshot(path string) (ContainerV1, error) {
	var snap ContainerV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &snap.Header); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if snap.Header.Version != 1 {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return snap, err
	}
	snap.Text = string(body)
	return snap, nil
}

// Dir is where backups for a board live under dataDir.
func Dir(dataDir, board string) string {
	return filepath.Join(dataDir, "boards", board, "snapshots")
}

// List returns backup paths for a board, oldest first.
func List(dataDir, board string) ([]string, error) {
	entries, err := os.ReadDir(Dir(dataDir, board))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		out = append(out, filepath.Join(Dir(dataDir, board), e.Name()))
	}
	// Names start with a fixed-width UTC timestamp.
	sort.Strings(out)
	return out, nil
}

// Latest returns the newest backup for a board, or "" when there is none.
func Latest(dataDir, board string) (string, error) {
	paths, err := List(dataDir, board)
	if err != nil || len(paths) == 0 {
		return "", err
	}
	return paths[len(paths)-1], nil
}

// Archiver writes a backup per overwrite and keeps at most Keep files per board.
type Archiver struct {
	DataDir string
	Keep    int
	Now     func() time.Time
	// OnWrite, if set, is called with every new backup path (e.g. to mirror it off-host).
	OnWrite func(path string)
}

func (a *Archiver) Archive(board, container, text string) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	ts := now().UTC()
	st, _ := statecodec.Decode(text)
	name := fmt.Sprintf("%s-%09d%s", ts.Format("20060102T150405"), ts.Nanosecond(), fileSuffix)
	path := filepath.Join(Dir(a.DataDir, board), name)
	err := WriteContainerSnapshot(path, ContainerV1{
		Header: Header{Version: 1, Board: board, Container: container, Cursor: st.Cursor, SavedAt: ts.Format(time.RFC3339Nano)},
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", board, err)
	}
	if a.OnWrite != nil {
		a.OnWrite(path)
	}
	return a.prune(board)
}

func (a *Archiver) prune(board string) error {
	if a.Keep <= 0 {
		return nil
	}
	paths, err := List(a.DataDir, board)
	if err != nil {
		return err
	}
	for len(paths) > a.Keep {
		if err := os.Remove(paths[0]); err != nil && !os.IsNotExist(err) {
			return err
		}
		paths = paths[1:]
	}
	return nil
}
