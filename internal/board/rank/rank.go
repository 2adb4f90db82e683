// Package rank orders a board's entities for display and persistence.
package rank

import (
	"sort"

	"ladderboard.ai/internal/board/model"
)

// Less reports whether a ranks above b: higher current score, then higher peak score,
// then the more recent update, then the lower id so the order is reproducible.
func Less(a, b model.Entity) bool {
	if a.CurrentScore != b.CurrentScore {
		return a.CurrentScore > b.CurrentScore
	}
	if a.PeakScore != b.PeakScore {
		return a.PeakScore > b.PeakScore
	}
	if c := a.LastUpdated.Compare(b.LastUpdated); c != 0 {
		return c > 0
	}
	return model.CompareMessageIDs(a.ID, b.ID) < 0
}

// Rank returns a sorted copy of entities.
func Rank(entities []model.Entity) []model.Entity {
	out := make([]model.Entity, len(entities))
	copy(out, entities)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}
