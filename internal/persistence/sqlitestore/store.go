// Package sqlitestore keeps boards on a single local SQLite file: container text, a message
// inbox per channel, member display names and the history of cycle reports.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"ladderboard.ai/internal/board/model"
	"ladderboard.ai/internal/cycle"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB

	reports chan cycle.Report
	wg      sync.WaitGroup
	once    sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64

	// Serializes id allocation in Append.
	appendMu sync.Mutex
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:      db,
		reports: make(chan cycle.Report, 1024),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS containers (
			name TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (channel_id, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel_order ON messages(channel_id, length(id), id);`,
		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cycle_reports (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			board TEXT NOT NULL,
			started_at TEXT NOT NULL,
			cursor_after TEXT NOT NULL,
			saved INTEGER NOT NULL,
			error TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_reports_board ON cycle_reports(board, seq);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued reports and closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.reports)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Load returns the container text. found is false when the container has never been saved.
func (s *Store) Load(ctx context.Context, container string) (string, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM containers WHERE name=?`, container).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite load container %s: %w", container, err)
	}
	return body, true, nil
}

func (s *Store) Save(ctx context.Context, container, text string) error {
	if strings.TrimSpace(container) == "" {
		return fmt.Errorf("empty container name")
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO containers(name,body,updated_at) VALUES(?,?,?)`,
		container, text, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite save container %s: %w", container, err)
	}
	return nil
}

func (s *Store) Containers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM containers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Append stores a message in the channel inbox. An empty id is allocated as one past the
// highest id in the channel, or from the clock for an empty channel.
func (s *Store) Append(ctx context.Context, m model.Message) (model.Message, error) {
	if strings.TrimSpace(m.ChannelID) == "" {
		return m, fmt.Errorf("empty channel id")
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if m.ID == "" {
		id, err := s.nextID(ctx, m.ChannelID, m.Timestamp)
		if err != nil {
			return m, err
		}
		m.ID = id
	} else if !model.IsDigits(m.ID) {
		return m, fmt.Errorf("message id must be numeric: %q", m.ID)
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO messages(id,channel_id,author_id,content,created_at) VALUES(?,?,?,?,?)`,
		m.ID, m.ChannelID, m.AuthorID, m.Content, m.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return m, fmt.Errorf("sqlite append message: %w", err)
	}
	return m, nil
}

func (s *Store) nextID(ctx context.Context, channel string, ts time.Time) (string, error) {
	var last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM messages WHERE channel_id=? ORDER BY length(id) DESC, id DESC LIMIT 1`, channel).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	base := uint64(ts.UnixMilli())
	if last.Valid {
		n, perr := strconv.ParseUint(last.String, 10, 64)
		if perr != nil {
			return "", fmt.Errorf("channel %s: last id %q does not fit uint64; supply ids explicitly", channel, last.String)
		}
		if n+1 > base {
			base = n + 1
		}
	}
	return strconv.FormatUint(base, 10), nil
}

// Fetch implements cycle.Source over the inbox.
func (s *Store) Fetch(ctx context.Context, channel, after string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if after == "" || after == model.CursorNone {
		after = ""
	}
	after = strings.TrimLeft(after, "0")
	rows, err := s.db.QueryContext(ctx, `SELECT id,channel_id,author_id,content,created_at FROM messages
		WHERE channel_id=? AND (length(id) > length(?) OR (length(id) = length(?) AND id > ?))
		ORDER BY length(id), id LIMIT ?`, channel, after, after, after, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite fetch messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var ts string
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &ts); err != nil {
			return nil, err
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Channels lists channels that have at least one message.
func (s *Store) Channels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT channel_id FROM messages ORDER BY channel_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SetMember(ctx context.Context, id, name string) error {
	if !model.IsDigits(id) {
		return fmt.Errorf("member id must be numeric: %q", id)
	}
	name = model.SanitizeName(name)
	if name == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id=?`, id)
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO members(id,display_name,updated_at) VALUES(?,?,?)`,
		id, name, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// ResolveName implements render.NameResolver.
func (s *Store) ResolveName(ctx context.Context, id string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT display_name FROM members WHERE id=?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// RecordCycle queues a report for the background writer. Reports are dropped when the queue
// is full; the JSONL cycle log remains the source of truth.
func (s *Store) RecordCycle(r cycle.Report) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.reports <- r:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// DroppedReports counts reports that never reached the table: queue overflow or a failed write.
func (s *Store) DroppedReports() uint64 { return s.dropped.Load() }

// RecentReports returns up to limit reports, newest first. An empty board matches all boards.
func (s *Store) RecentReports(ctx context.Context, board string, limit int) ([]cycle.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT raw_json FROM cycle_reports ORDER BY seq DESC LIMIT ?`
	args := []any{limit}
	if board != "" {
		q = `SELECT raw_json FROM cycle_reports WHERE board=? ORDER BY seq DESC LIMIT ?`
		args = []any{board, limit}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []cycle.Report
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r cycle.Report
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) loop() {
	ctx := context.Background()
	insert, err := s.db.Prepare(`INSERT INTO cycle_reports(board,started_at,cursor_after,saved,error,raw_json) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		insert = nil
	}
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()

	for r := range s.reports {
		if insert == nil {
			s.dropped.Add(1)
			continue
		}
		raw, err := json.Marshal(r)
		if err != nil {
			s.dropped.Add(1)
			continue
		}
		saved := 0
		if r.Saved {
			saved = 1
		}
		var errText any
		if r.Error != "" {
			errText = r.Error
		}
		if _, err := insert.ExecContext(ctx, r.Board, r.StartedAt.UTC().Format(time.RFC3339Nano), r.CursorAfter, saved, errText, string(raw)); err != nil {
			s.dropped.Add(1)
		}
	}
}
