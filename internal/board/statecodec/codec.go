// Package statecodec embeds board state inside a larger human-readable text blob.
//
// Section layout:
//
//	[DATA:v1]
//	LAST:<cursor|none>
//	id|displayName|currentTier|currentScore|peakTier|peakScore|lastUpdated
//	...
//	[/DATA]
//
// The markers must each occupy a whole line; text around the section is ignored.
package statecodec

import (
	"fmt"
	"strconv"
	"strings"

	"ladderboard.ai/internal/board/model"
)

const (
	Version = "v1"

	startPrefix = "[DATA:"
	StartMarker = startPrefix + Version + "]"
	EndMarker   = "[/DATA]"

	cursorPrefix = "LAST:"
	fieldSep     = "|"
	fieldCount   = 7
)

type Status int

const (
	Initialized Status = iota
	// Uninitialized means the markers were missing; the board starts empty.
	Uninitialized
	// UnknownVersion means a section exists but was written in a format this codec does not read.
	UnknownVersion
)

func (s Status) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Uninitialized:
		return "uninitialized"
	case UnknownVersion:
		return "unknown_version"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type State struct {
	Cursor   string
	Entities []model.Entity
}

type Discard struct {
	Line   string `json:"line"`
	Reason string `json:"reason"`
}

type Diagnostics struct {
	Status    Status
	Version   string
	Discarded []Discard
}

func Encode(cursor string, entities []model.Entity) string {
	if cursor == "" {
		cursor = model.CursorNone
	}
	var b strings.Builder
	b.WriteString(StartMarker)
	b.WriteByte('\n')
	b.WriteString(cursorPrefix)
	b.WriteString(cursor)
	b.WriteByte('\n')
	for _, e := range entities {
		b.WriteString(encodeEntity(e))
		b.WriteByte('\n')
	}
	b.WriteString(EndMarker)
	return b.String()
}

func encodeEntity(e model.Entity) string {
	return strings.Join([]string{
		e.ID,
		e.DisplayName,
		e.CurrentTier,
		strconv.Itoa(e.CurrentScore),
		e.PeakTier,
		strconv.Itoa(e.PeakScore),
		e.LastUpdated.String(),
	}, fieldSep)
}

// Decode never fails: missing or unreadable sections are reported through Diagnostics.
func Decode(text string) (State, Diagnostics) {
	empty := State{Cursor: model.CursorNone}

	lines := strings.Split(text, "\n")
	start, end := -1, -1
	version := ""
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if v, ok := startTag(line); ok {
			// A later start tag supersedes an earlier one that was never closed.
			start, version = i, v
			continue
		}
		if line == EndMarker && start >= 0 {
			end = i
			break
		}
	}
	if start < 0 {
		return empty, Diagnostics{Status: Uninitialized}
	}
	if end < 0 {
		return empty, Diagnostics{Status: Uninitialized, Version: version}
	}
	if version != Version {
		return empty, Diagnostics{Status: UnknownVersion, Version: version}
	}
	body := lines[start+1 : end]

	st := State{Cursor: model.CursorNone}
	diag := Diagnostics{Status: Initialized, Version: version}
	index := map[string]int{}
	sawCursor := false

	for _, line := range body {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !sawCursor {
			sawCursor = true
			if c, ok := parseCursor(line); ok {
				st.Cursor = c
				continue
			}
		}
		e, err := decodeEntity(line)
		if err != nil {
			diag.Discarded = append(diag.Discarded, Discard{Line: line, Reason: err.Error()})
			continue
		}
		if i, ok := index[e.ID]; ok {
			prev := st.Entities[i]
			if e.LastUpdated.Before(prev.LastUpdated) {
				diag.Discarded = append(diag.Discarded, Discard{Line: line, Reason: "duplicate id with older date"})
				continue
			}
			diag.Discarded = append(diag.Discarded, Discard{Line: encodeEntity(prev), Reason: "duplicate id superseded"})
			st.Entities[i] = e
			continue
		}
		index[e.ID] = len(st.Entities)
		st.Entities = append(st.Entities, e)
	}
	return st, diag
}

// startTag recognises a start marker that occupies a whole line, e.g. "[DATA:v1]".
func startTag(line string) (string, bool) {
	if !strings.HasPrefix(line, startPrefix) || !strings.HasSuffix(line, "]") {
		return "", false
	}
	v := line[len(startPrefix) : len(line)-1]
	if v == "" || strings.ContainsAny(v, "[]") {
		return "", false
	}
	return v, true
}

func parseCursor(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, cursorPrefix) {
		return "", false
	}
	c := strings.TrimSpace(strings.TrimPrefix(line, cursorPrefix))
	if c == model.CursorNone || model.IsDigits(c) {
		return c, true
	}
	return model.CursorNone, true
}

func decodeEntity(line string) (model.Entity, error) {
	f := strings.Split(line, fieldSep)
	if len(f) < fieldCount {
		return model.Entity{}, fmt.Errorf("expected %d fields, got %d", fieldCount, len(f))
	}
	cur, err := strconv.Atoi(f[3])
	if err != nil {
		return model.Entity{}, fmt.Errorf("current score %q: %w", f[3], err)
	}
	peak, err := strconv.Atoi(f[5])
	if err != nil {
		return model.Entity{}, fmt.Errorf("peak score %q: %w", f[5], err)
	}
	date, err := model.ParseDate(f[6])
	if err != nil {
		return model.Entity{}, err
	}
	e := model.Entity{
		ID:           f[0],
		DisplayName:  f[1],
		CurrentTier:  f[2],
		CurrentScore: cur,
		PeakTier:     f[4],
		PeakScore:    peak,
		LastUpdated:  date,
	}
	if err := e.Validate(); err != nil {
		return model.Entity{}, err
	}
	return e, nil
}
