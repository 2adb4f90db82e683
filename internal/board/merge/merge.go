// Package merge folds update records into a board's entity collection.
//
// Conflicts on the same entity are settled by the date each update declares, not by
// arrival order: an update older than the stored entity is stale and ignored, an update
// of the same day or newer replaces the entity. Replaying an update whose fields already
// match the stored entity is reported as stale.
package merge

import (
	"ladderboard.ai/internal/board/model"
)

type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
	Stale
	Invalid
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Stale:
		return "stale"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

type RecordOutcome struct {
	MessageID string
	EntityID  string
	Outcome   Outcome
	Reason    string
}

type Result struct {
	Entities []model.Entity
	Cursor   string
	Outcomes []RecordOutcome
}

type Counts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Stale    int `json:"stale"`
	Invalid  int `json:"invalid"`
}

func (r Result) Counts() Counts {
	var c Counts
	for _, o := range r.Outcomes {
		switch o.Outcome {
		case Inserted:
			c.Inserted++
		case Updated:
			c.Updated++
		case Stale:
			c.Stale++
		case Invalid:
			c.Invalid++
		}
	}
	return c
}

// Merge applies updates in the order given (oldest message first). The input slice is not modified.
// The returned cursor is the last processed message id; it never moves backwards.
func Merge(cursor string, entities []model.Entity, updates []model.Update) Result {
	if cursor == "" {
		cursor = model.CursorNone
	}
	out := make([]model.Entity, len(entities))
	copy(out, entities)
	index := make(map[string]int, len(out))
	for i, e := range out {
		index[e.ID] = i
	}

	res := Result{Cursor: cursor, Outcomes: make([]RecordOutcome, 0, len(updates))}
	for _, u := range updates {
		ro := RecordOutcome{MessageID: u.MessageID, EntityID: u.EntityID}
		if err := u.Validate(); err != nil {
			ro.Outcome = Invalid
			ro.Reason = err.Error()
		} else if i, ok := index[u.EntityID]; !ok {
			index[u.EntityID] = len(out)
			out = append(out, u.Entity())
			ro.Outcome = Inserted
		} else if u.LastUpdated.Before(out[i].LastUpdated) {
			ro.Outcome = Stale
			ro.Reason = "older than " + out[i].LastUpdated.String()
		} else {
			next := u.Entity()
			next.DisplayName = out[i].DisplayName
			if next == out[i] {
				// A replayed copy changes nothing.
				ro.Outcome = Stale
				ro.Reason = "duplicate"
			} else {
				out[i] = next
				ro.Outcome = Updated
			}
		}
		res.Outcomes = append(res.Outcomes, ro)
		if u.MessageID != "" && model.CompareMessageIDs(u.MessageID, res.Cursor) > 0 {
			res.Cursor = u.MessageID
		}
	}
	res.Entities = out
	return res
}
