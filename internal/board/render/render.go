// Package render produces the container text: a readable leaderboard followed by the
// encoded state section, kept under the display surface's character ceiling.
package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ladderboard.ai/internal/board/model"
	"ladderboard.ai/internal/board/statecodec"
)

const (
	DefaultCeiling = 2000
	// Floor is the number of entities always kept; a render at the floor is accepted even if too long.
	Floor = 3
)

type Renderer struct {
	Ceiling int
	Now     func() time.Time
}

type Result struct {
	Text string
	// Shown is the number of leading entities present in both the visible list and the data section.
	Shown    int
	Total    int
	Degraded bool
	// Length is measured in characters (runes).
	Length int
	Fits   bool
}

func (r Renderer) ceiling() int {
	if r.Ceiling <= 0 {
		return DefaultCeiling
	}
	return r.Ceiling
}

// Render expects ordered to be ranked already. When the full render is too long the shown
// count is halved until it fits. Entities past the shown count are dropped from the
// persisted section as well, not only hidden.
func (r Renderer) Render(label string, ordered []model.Entity, cursor string) Result {
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now().UTC()
	}
	limit := r.ceiling()
	total := len(ordered)
	floor := Floor
	if total < floor {
		floor = total
	}

	shown := total
	text := build(label, ordered[:shown], total, cursor, now)
	n := utf8.RuneCountInString(text)
	for n > limit && shown > floor {
		shown /= 2
		if shown < floor {
			shown = floor
		}
		text = build(label, ordered[:shown], total, cursor, now)
		n = utf8.RuneCountInString(text)
	}
	return Result{
		Text:     text,
		Shown:    shown,
		Total:    total,
		Degraded: shown < total,
		Length:   n,
		Fits:     n <= limit,
	}
}

var medals = []string{"🥇", "🥈", "🥉"}

func build(label string, shown []model.Entity, total int, cursor string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 **%s Leaderboard** 🏆\n\n", label)
	if len(shown) == 0 {
		b.WriteString("_No players yet._\n")
	}
	for i, e := range shown {
		pos := fmt.Sprintf("**#%d**", i+1)
		if i < len(medals) {
			pos = medals[i] + " " + pos
		}
		fmt.Fprintf(&b, "%s <@%s>", pos, e.ID)
		if e.DisplayName != "" {
			fmt.Fprintf(&b, " %s", e.DisplayName)
		}
		fmt.Fprintf(&b, "\nCurrent: **%s** (%d) · Peak: %s (%d) · %s\n",
			e.CurrentTier, e.CurrentScore, e.PeakTier, e.PeakScore, e.LastUpdated)
	}
	b.WriteByte('\n')
	if len(shown) < total {
		fmt.Fprintf(&b, "👥 %d players (trimmed from %d to fit)", len(shown), total)
	} else {
		fmt.Fprintf(&b, "👥 %d players", total)
	}
	fmt.Fprintf(&b, " · updated %s\n\n", now.Format("2006-01-02 15:04 UTC"))
	b.WriteString(statecodec.Encode(cursor, shown))
	return b.String()
}
