package cycle

import "time"

// Report summarizes one board pass. Counts are kept even when the pass fails part-way so
// operators can see drift.
type Report struct {
	Board     string    `json:"board"`
	Channel   string    `json:"channel"`
	Container string    `json:"container"`
	StartedAt time.Time `json:"started_at"`

	ContainerStatus string `json:"container_status"`
	CursorBefore    string `json:"cursor_before"`
	CursorAfter     string `json:"cursor_after"`

	Fetched int `json:"fetched"`
	Parsed  int `json:"parsed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Flagged int `json:"flagged"`

	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Stale     int `json:"stale"`
	Invalid   int `json:"invalid"`
	Discarded int `json:"discarded"`

	NameFailures int `json:"name_failures,omitempty"`

	Shown    int  `json:"shown"`
	Total    int  `json:"total"`
	Degraded bool `json:"degraded"`
	Length   int  `json:"length"`

	Unchanged  bool   `json:"unchanged,omitempty"`
	Saved      bool   `json:"saved"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Totals adds up reports across boards, e.g. for metrics.
type Totals struct {
	Boards   int `json:"boards"`
	Errors   int `json:"errors"`
	Fetched  int `json:"fetched"`
	Parsed   int `json:"parsed"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Stale    int `json:"stale"`
	Invalid  int `json:"invalid"`
	Degraded int `json:"degraded"`
}

func Sum(reports []Report) Totals {
	var t Totals
	for _, r := range reports {
		t.Boards++
		if r.Error != "" {
			t.Errors++
		}
		t.Fetched += r.Fetched
		t.Parsed += r.Parsed
		t.Failed += r.Failed
		t.Skipped += r.Skipped
		t.Inserted += r.Inserted
		t.Updated += r.Updated
		t.Stale += r.Stale
		t.Invalid += r.Invalid
		if r.Degraded {
			t.Degraded++
		}
	}
	return t
}
