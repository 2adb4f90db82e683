package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"ladderboard.ai/internal/board/model"
	"ladderboard.ai/internal/board/rank"
	"ladderboard.ai/internal/board/statecodec"
	persistlog "ladderboard.ai/internal/persistence/log"
	"ladderboard.ai/internal/persistence/snapshot"
	"ladderboard.ai/internal/persistence/sqlitestore"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "post":
			postCmd(os.Args[2:])
			return
		case "show":
			showCmd(os.Args[2:])
			return
		case "decode":
			decodeCmd(os.Args[2:])
			return
		case "reports":
			reportsCmd(os.Args[2:])
			return
		case "log":
			logCmd(os.Args[2:])
			return
		case "backups":
			backupsCmd(os.Args[2:])
			return
		case "restore":
			restoreCmd(os.Args[2:])
			return
		case "member":
			memberCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

type common struct {
	dataDir *string
	dbPath  *string
}

func commonFlags(fs *flag.FlagSet) common {
	return common{
		dataDir: fs.String("data", "./data", "runtime data directory"),
		dbPath:  fs.String("db", "", "sqlite path (default: <data>/boards.sqlite)"),
	}
}

func (c common) open() *sqlitestore.Store {
	path := strings.TrimSpace(*c.dbPath)
	if path == "" {
		path = filepath.Join(*c.dataDir, "boards.sqlite")
	}
	s, err := sqlitestore.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return s
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	c := commonFlags(fs)
	_ = fs.Parse(args)

	s := c.open()
	defer s.Close()
	names, err := s.Containers(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func postCmd(args []string) {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	c := commonFlags(fs)
	channel := fs.String("channel", "", "channel id (required)")
	author := fs.String("author", "admin", "author id")
	id := fs.String("id", "", "message id (optional; allocated when empty)")
	_ = fs.Parse(args)

	content := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(*channel) == "" || strings.TrimSpace(content) == "" {
		fmt.Fprintln(os.Stderr, "usage: admin post -channel <id> LB_UPDATE: <@id> tier score peak_tier peak_score YYYY-MM-DD")
		os.Exit(2)
	}
	s := c.open()
	defer s.Close()
	m, err := s.Append(context.Background(), model.Message{ID: *id, ChannelID: *channel, AuthorID: *author, Content: content})
	if err != nil {
		fmt.Fprintln(os.Stderr, "post:", err)
		os.Exit(1)
	}
	fmt.Println(m.ID)
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	c := commonFlags(fs)
	container := fs.String("container", "", "container name (required)")
	_ = fs.Parse(args)

	text := loadContainer(c, *container)
	fmt.Println(text)
}

func decodeCmd(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	c := commonFlags(fs)
	container := fs.String("container", "", "container name")
	file := fs.String("file", "", "read container text from a file instead ('-' for stdin)")
	_ = fs.Parse(args)

	var text string
	switch {
	case *file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read stdin:", err)
			os.Exit(1)
		}
		text = string(b)
	case *file != "":
		b, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		text = string(b)
	default:
		text = loadContainer(c, *container)
	}

	st, diag := statecodec.Decode(text)
	fmt.Printf("status=%s cursor=%s entities=%d discarded=%d\n", diag.Status, st.Cursor, len(st.Entities), len(diag.Discarded))
	for _, d := range diag.Discarded {
		fmt.Printf("discarded: %q (%s)\n", d.Line, d.Reason)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME\tCURRENT\tPEAK\tUPDATED")
	for i, e := range rank.Rank(st.Entities) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s %d\t%s %d\t%s\n", i+1, e.ID, e.DisplayName, e.CurrentTier, e.CurrentScore, e.PeakTier, e.PeakScore, e.LastUpdated)
	}
	_ = tw.Flush()
}

func reportsCmd(args []string) {
	fs := flag.NewFlagSet("reports", flag.ExitOnError)
	c := commonFlags(fs)
	board := fs.String("board", "", "board id filter")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	s := c.open()
	defer s.Close()
	reps, err := s.RecentReports(context.Background(), *board, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reports:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range reps {
		_ = enc.Encode(r)
	}
}

func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	hour := fs.String("hour", "", "UTC hour YYYY-MM-DD-HH (default: current hour)")
	_ = fs.Parse(args)

	h := strings.TrimSpace(*hour)
	if h == "" {
		h = time.Now().UTC().Format("2006-01-02-15")
	}
	path := filepath.Join(*dataDir, "cycles", "cycles-"+h+".jsonl.zst")
	reps, err := persistlog.ReadCycleLog(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read log:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range reps {
		_ = enc.Encode(r)
	}
}

func backupsCmd(args []string) {
	fs := flag.NewFlagSet("backups", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	board := fs.String("board", "", "board id (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*board) == "" {
		fmt.Fprintln(os.Stderr, "missing -board")
		os.Exit(2)
	}
	paths, err := snapshot.List(*dataDir, *board)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, p := range paths {
		snap, err := snapshot.ReadContainerSnapshot(p)
		if err != nil {
			fmt.Printf("%s\terror=%v\n", filepath.Base(p), err)
			continue
		}
		fmt.Printf("%s\tcontainer=%s\tcursor=%s\tsaved_at=%s\n", filepath.Base(p), snap.Header.Container, snap.Header.Cursor, snap.Header.SavedAt)
	}
}

func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	c := commonFlags(fs)
	board := fs.String("board", "", "board id (required)")
	snapPath := fs.String("snapshot", "", "backup path (optional; defaults to latest)")
	container := fs.String("container", "", "target container (optional; defaults to the backup's container)")
	dryRun := fs.Bool("dry_run", false, "print what would be written")
	_ = fs.Parse(args)

	if strings.TrimSpace(*board) == "" {
		fmt.Fprintln(os.Stderr, "missing -board")
		os.Exit(2)
	}
	path := strings.TrimSpace(*snapPath)
	if path == "" {
		latest, err := snapshot.Latest(*c.dataDir, *board)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest:", err)
			os.Exit(1)
		}
		path = latest
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no backup found; provide -snapshot")
		os.Exit(2)
	}
	snap, err := snapshot.ReadContainerSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read backup:", err)
		os.Exit(1)
	}
	target := strings.TrimSpace(*container)
	if target == "" {
		target = snap.Header.Container
	}
	if *dryRun {
		fmt.Printf("would restore %s into container %s (cursor=%s)\n", filepath.Base(path), target, snap.Header.Cursor)
		fmt.Println(snap.Text)
		return
	}

	s := c.open()
	defer s.Close()
	if err := s.Save(context.Background(), target, snap.Text); err != nil {
		fmt.Fprintln(os.Stderr, "save:", err)
		os.Exit(1)
	}
	fmt.Printf("restored %s into container %s (cursor=%s)\n", filepath.Base(path), target, snap.Header.Cursor)
}

func memberCmd(args []string) {
	fs := flag.NewFlagSet("member", flag.ExitOnError)
	c := commonFlags(fs)
	id := fs.String("id", "", "member id (required)")
	name := fs.String("name", "", "display name (empty clears it)")
	_ = fs.Parse(args)

	s := c.open()
	defer s.Close()
	if err := s.SetMember(context.Background(), *id, *name); err != nil {
		fmt.Fprintln(os.Stderr, "member:", err)
		os.Exit(1)
	}
}

func loadContainer(c common, container string) string {
	if strings.TrimSpace(container) == "" {
		fmt.Fprintln(os.Stderr, "missing -container")
		os.Exit(2)
	}
	s := c.open()
	defer s.Close()
	text, found, err := s.Load(context.Background(), container)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	if !found {
		fmt.Fprintln(os.Stderr, "container not found:", container)
		os.Exit(1)
	}
	return text
}
