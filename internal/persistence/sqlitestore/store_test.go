package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ladderboard.ai/internal/board/model"
	"ladderboard.ai/internal/boards"
	"ladderboard.ai/internal/cycle"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boards.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, path
}

func TestStore_Containers(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	if _, found, err := s.Load(ctx, "m1"); err != nil || found {
		t.Fatalf("missing container: found=%v err=%v", found, err)
	}
	if err := s.Save(ctx, "m1", "first"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "m1", "second"); err != nil {
		t.Fatalf("save: %v", err)
	}
	text, found, err := s.Load(ctx, "m1")
	if err != nil || !found || text != "second" {
		t.Fatalf("load: %q %v %v", text, found, err)
	}
	names, err := s.Containers(ctx)
	if err != nil || len(names) != 1 || names[0] != "m1" {
		t.Fatalf("containers: %v %v", names, err)
	}
}

func TestStore_InboxOrderingAndPaging(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	for _, id := range []string{"9", "10", "100", "11"} {
		if _, err := s.Append(ctx, model.Message{ID: id, ChannelID: "c1", Content: "m" + id}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if _, err := s.Append(ctx, model.Message{ID: "12", ChannelID: "c2", Content: "other"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Fetch(ctx, "c1", model.CursorNone, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := []string{"9", "10", "11", "100"}
	if len(got) != len(want) {
		t.Fatalf("fetch: %+v", got)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("order: got %s at %d want %s", got[i].ID, i, want[i])
		}
	}

	page, err := s.Fetch(ctx, "c1", "10", 1)
	if err != nil || len(page) != 1 || page[0].ID != "11" {
		t.Fatalf("page after 10: %+v %v", page, err)
	}
	if rest, _ := s.Fetch(ctx, "c1", "100", 10); len(rest) != 0 {
		t.Fatalf("nothing after the last id: %+v", rest)
	}
}

func TestStore_AppendAllocatesIncreasingIDs(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	ts := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	a, err := s.Append(ctx, model.Message{ChannelID: "c1", Content: "a", Timestamp: ts})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	b, err := s.Append(ctx, model.Message{ChannelID: "c1", Content: "b", Timestamp: ts})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if model.CompareMessageIDs(b.ID, a.ID) <= 0 {
		t.Fatalf("ids not increasing: %s then %s", a.ID, b.ID)
	}
	if _, err := s.Append(ctx, model.Message{ID: "abc", ChannelID: "c1"}); err == nil {
		t.Fatalf("expected non-numeric id to be rejected")
	}
	chans, _ := s.Channels(ctx)
	if len(chans) != 1 || chans[0] != "c1" {
		t.Fatalf("channels: %v", chans)
	}
}

func TestStore_Members(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.ResolveName(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetMember(ctx, "1", "ali|ce"); err != nil {
		t.Fatalf("set: %v", err)
	}
	name, err := s.ResolveName(ctx, "1")
	if err != nil || name != "ali ce" {
		t.Fatalf("resolve: %q %v", name, err)
	}
	if err := s.SetMember(ctx, "1", ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.ResolveName(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cleared member still resolves: %v", err)
	}
}

func TestStore_RecordCycleWritesRows(t *testing.T) {
	s, path := openTemp(t)
	started := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	_ = s.RecordCycle(cycle.Report{Board: "val", StartedAt: started, CursorAfter: "105", Saved: true, Fetched: 5})
	_ = s.RecordCycle(cycle.Report{Board: "rl", StartedAt: started, CursorAfter: "none", Error: "fetch: boom"})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	var n, saved int
	if err := db.QueryRow(`SELECT COUNT(*) FROM cycle_reports`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if err := db.QueryRow(`SELECT saved FROM cycle_reports WHERE board='val'`).Scan(&saved); err != nil {
		t.Fatalf("saved: %v", err)
	}
	_ = db.Close()
	if n != 2 || saved != 1 {
		t.Fatalf("rows=%d saved=%d", n, saved)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	reps, err := s2.RecentReports(context.Background(), "", 10)
	if err != nil || len(reps) != 2 {
		t.Fatalf("recent: %+v %v", reps, err)
	}
	if reps[0].Board != "rl" || reps[1].Fetched != 5 {
		t.Fatalf("newest first: %+v", reps)
	}
	only, _ := s2.RecentReports(context.Background(), "val", 10)
	if len(only) != 1 || only[0].CursorAfter != "105" {
		t.Fatalf("filtered: %+v", only)
	}
}

func TestStore_FailedReportWritesAreCounted(t *testing.T) {
	s, _ := openTemp(t)
	if _, err := s.db.Exec(`DROP TABLE cycle_reports`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_ = s.RecordCycle(cycle.Report{Board: "val", CursorAfter: "1"})
	_ = s.RecordCycle(cycle.Report{Board: "rl", CursorAfter: "2"})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := s.DroppedReports(); got != 2 {
		t.Fatalf("dropped=%d want 2", got)
	}
}

func TestStore_DrivesCycle(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()
	_, _ = s.Append(ctx, model.Message{ID: "101", ChannelID: "c1", Content: "LB_UPDATE: <@1> Diamond 2450 Master 2610 2026-02-14"})
	_ = s.SetMember(ctx, "1", "alice")

	var reg cycle.Registry
	reg.Config.Boards = append(reg.Config.Boards, boards.BoardSpec{ID: "val", Channel: "c1", Container: "m1"})
	reg.Source, reg.Store, reg.Names = s, s, s
	reg.Sinks = []cycle.ReportSink{s}
	reps := cycle.NewRunner(reg, nil).RunAll(ctx)
	if len(reps) != 1 || !reps[0].Saved || reps[0].CursorAfter != "101" {
		t.Fatalf("report: %+v", reps)
	}
	text, found, _ := s.Load(ctx, "m1")
	if !found || text == "" {
		t.Fatalf("container not written")
	}
}
