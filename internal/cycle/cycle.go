// Package cycle runs one sync pass per board: read the container, fetch new messages
// after the stored cursor, fold updates in, re-rank, re-render and write the container back.
//
// A pass assumes it is the only writer for its containers; two concurrent runners against
// the same container will overwrite each other.
package cycle

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"ladderboard.ai/internal/board/merge"
	"ladderboard.ai/internal/board/model"
	"ladderboard.ai/internal/board/rank"
	"ladderboard.ai/internal/board/render"
	"ladderboard.ai/internal/board/statecodec"
	"ladderboard.ai/internal/board/updates"
	"ladderboard.ai/internal/boards"
)

// Source yields channel messages with ids strictly after `after`, oldest first, at most limit.
type Source interface {
	Fetch(ctx context.Context, channel, after string, limit int) ([]model.Message, error)
}

// Store holds container text. found=false means the container has never been written.
type Store interface {
	Load(ctx context.Context, container string) (text string, found bool, err error)
	Save(ctx context.Context, container, text string) error
}

// Archiver keeps the previous container text before it is overwritten.
type Archiver interface {
	Archive(board, container, text string) error
}

type ReportSink interface {
	RecordCycle(r Report) error
}

// Registry is everything a cycle needs. Build one per cycle and drop it afterwards.
type Registry struct {
	Config   boards.Config
	Source   Source
	Store    Store
	Archiver Archiver
	Names    render.NameResolver
	Sinks    []ReportSink
}

type Runner struct {
	reg      Registry
	parser   updates.Parser
	renderer render.Renderer
	log      *log.Logger
	now      func() time.Time
}

func NewRunner(reg Registry, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "[cycle] ", log.LstdFlags)
	}
	reg.Config.Normalize()
	return &Runner{
		reg:      reg,
		parser:   updates.NewParser(reg.Config.UpdatePrefix),
		renderer: render.Renderer{Ceiling: reg.Config.SizeCeiling},
		log:      logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source used for rendering and report timestamps.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
	r.renderer.Now = now
}

// RunAll processes every active board in order. A failing board does not stop the others.
func (r *Runner) RunAll(ctx context.Context) []Report {
	active := r.reg.Config.Active()
	out := make([]Report, 0, len(active))
	for _, b := range active {
		if ctx.Err() != nil {
			break
		}
		rep := r.RunBoard(ctx, b)
		r.emit(rep)
		out = append(out, rep)
	}
	return out
}

func (r *Runner) emit(rep Report) {
	for _, s := range r.reg.Sinks {
		if s == nil {
			continue
		}
		if err := s.RecordCycle(rep); err != nil {
			r.log.Printf("board=%s record report: %v", rep.Board, err)
		}
	}
	if rep.Error != "" {
		r.log.Printf("board=%s error: %s", rep.Board, rep.Error)
	}
	if rep.Degraded {
		r.log.Printf("board=%s WARNING container overflow: kept %d of %d entities", rep.Board, rep.Shown, rep.Total)
	}
	r.log.Printf("board=%s cursor=%s->%s fetched=%d parsed=%d failed=%d skipped=%d inserted=%d updated=%d stale=%d invalid=%d shown=%d/%d len=%d saved=%v",
		rep.Board, rep.CursorBefore, rep.CursorAfter, rep.Fetched, rep.Parsed, rep.Failed, rep.Skipped,
		rep.Inserted, rep.Updated, rep.Stale, rep.Invalid, rep.Shown, rep.Total, rep.Length, rep.Saved)
}

// RunBoard performs one full pass for a board and reports what happened.
func (r *Runner) RunBoard(ctx context.Context, b boards.BoardSpec) (rep Report) {
	start := r.now()
	rep = Report{Board: b.ID, Container: b.Container, Channel: b.Channel, StartedAt: start.UTC()}
	defer func() { rep.DurationMS = r.now().Sub(start).Milliseconds() }()

	text, found, err := r.reg.Store.Load(ctx, b.Container)
	if err != nil {
		rep.Error = fmt.Sprintf("load container: %v", err)
		return rep
	}
	st, diag := statecodec.Decode(text)
	rep.ContainerStatus = diag.Status.String()
	rep.Discarded = len(diag.Discarded)
	for _, d := range diag.Discarded {
		r.log.Printf("board=%s discarded stored line %q: %s", b.ID, d.Line, d.Reason)
	}
	if diag.Status == statecodec.UnknownVersion {
		rep.Error = fmt.Sprintf("container %s holds data version %q; refusing to overwrite", b.Container, diag.Version)
		return rep
	}
	if diag.Status == statecodec.Uninitialized {
		if found && text != "" {
			r.log.Printf("board=%s container %s has no data section; starting empty", b.ID, b.Container)
		}
		if b.Cursor != "" && b.Cursor != model.CursorNone {
			st.Cursor = b.Cursor
		}
	}
	rep.CursorBefore = st.Cursor

	msgs, err := r.fetch(ctx, b.Channel, st.Cursor)
	rep.Fetched = len(msgs)
	if err != nil {
		// Keep whatever was fetched before the failure; the cursor only covers those.
		rep.Error = fmt.Sprintf("fetch: %v", err)
		if len(msgs) == 0 {
			return rep
		}
	}

	batch := r.parser.ParseBatch(msgs)
	rep.Parsed = len(batch.Parsed)
	rep.Failed = len(batch.Failed)
	rep.Skipped = len(batch.Skipped)
	rep.Flagged = batch.Flagged
	for _, f := range batch.Failed {
		r.log.Printf("board=%s message=%s malformed update: %s", b.ID, f.MessageID, f.Reason)
	}

	mr := merge.Merge(st.Cursor, st.Entities, batch.Parsed)
	counts := mr.Counts()
	rep.Inserted, rep.Updated, rep.Stale, rep.Invalid = counts.Inserted, counts.Updated, counts.Stale, counts.Invalid

	cursor := mr.Cursor
	if n := len(msgs); n > 0 && model.CompareMessageIDs(msgs[n-1].ID, cursor) > 0 {
		cursor = msgs[n-1].ID
	}
	rep.CursorAfter = cursor

	if len(msgs) == 0 && found && diag.Status == statecodec.Initialized && rep.Discarded == 0 {
		rep.Total = len(st.Entities)
		rep.Shown = rep.Total
		rep.Unchanged = true
		return rep
	}

	touched := map[string]bool{}
	for _, o := range mr.Outcomes {
		if o.Outcome == merge.Inserted || o.Outcome == merge.Updated {
			touched[o.EntityID] = true
		}
	}
	entities, nameFailures := render.Decorate(ctx, r.reg.Names, mr.Entities, touched, r.log)
	rep.NameFailures = nameFailures

	ordered := rank.Rank(entities)
	res := r.renderer.Render(b.Label, ordered, cursor)
	rep.Shown, rep.Total, rep.Degraded, rep.Length = res.Shown, res.Total, res.Degraded, res.Length

	if r.reg.Archiver != nil && found && text != "" {
		if err := r.reg.Archiver.Archive(b.ID, b.Container, text); err != nil {
			r.log.Printf("board=%s archive previous container: %v", b.ID, err)
		}
	}
	if err := r.reg.Store.Save(ctx, b.Container, res.Text); err != nil {
		rep.Error = joinErr(rep.Error, fmt.Sprintf("save container: %v", err))
		rep.CursorAfter = rep.CursorBefore
		return rep
	}
	rep.Saved = true
	return rep
}

// fetch pages through the source until it runs dry or the per-pass ceiling is reached.
func (r *Runner) fetch(ctx context.Context, channel, after string) ([]model.Message, error) {
	maxMsgs := r.reg.Config.MaxMessagesPerPass
	page := r.reg.Config.PageSize
	if page <= 0 || page > maxMsgs {
		page = maxMsgs
	}
	var out []model.Message
	for len(out) < maxMsgs {
		limit := page
		if rem := maxMsgs - len(out); rem < limit {
			limit = rem
		}
		got, err := r.reg.Source.Fetch(ctx, channel, after, limit)
		if err != nil {
			return out, err
		}
		sort.SliceStable(got, func(i, j int) bool { return model.CompareMessageIDs(got[i].ID, got[j].ID) < 0 })
		n := 0
		for _, m := range got {
			// Sources are asked for ids after the cursor; drop anything that is not.
			if model.CompareMessageIDs(m.ID, after) <= 0 {
				continue
			}
			out = append(out, m)
			after = m.ID
			n++
		}
		if len(got) < limit || n == 0 {
			break
		}
	}
	return out, nil
}

func joinErr(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
