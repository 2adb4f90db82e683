package updates

import (
	"strings"
	"testing"

	"ladderboard.ai/internal/board/model"
)

func msg(id, content string) model.Message { return model.Message{ID: id, Content: content} }

func TestParse_Valid(t *testing.T) {
	p := NewParser("")
	u, res := p.Parse(msg("100", "  LB_UPDATE: <@42> Diamond 2450 Master 2610 2026-02-14  "))
	if res.Kind != Parsed {
		t.Fatalf("kind: got %v (%s)", res.Kind, res.Reason)
	}
	if u.EntityID != "42" || u.CurrentTier != "Diamond" || u.CurrentScore != 2450 ||
		u.PeakTier != "Master" || u.PeakScore != 2610 || u.LastUpdated.String() != "2026-02-14" || u.MessageID != "100" {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestParse_NicknameMentionAndTrailingTokens(t *testing.T) {
	p := NewParser("")
	u, res := p.Parse(msg("1", "LB_UPDATE: <@!7> Gold 10 Gold 12 2026-01-01 gg wp"))
	if res.Kind != Parsed || u.EntityID != "7" {
		t.Fatalf("expected parsed nickname mention: %+v %+v", u, res)
	}
	if res.Extra != 2 {
		t.Fatalf("extra tokens: got %d want 2", res.Extra)
	}
}

func TestParse_SanitizesTiers(t *testing.T) {
	u, res := NewParser("").Parse(msg("1", "LB_UPDATE: <@7> <Gold> 10 (Plat); 12 2026-01-01"))
	if res.Kind != Parsed {
		t.Fatalf("expected parsed: %s", res.Reason)
	}
	if u.CurrentTier != "Gold" || u.PeakTier != "Plat" {
		t.Fatalf("tiers not sanitized: %q %q", u.CurrentTier, u.PeakTier)
	}
}

func TestParse_Rejections(t *testing.T) {
	cases := map[string]string{
		"LB_UPDATE: @user Diamond -5 Master 2610 2026-02-14":     "negative",
		"LB_UPDATE: <@1> Diamond 10 Master 20":                    "expected 6 fields",
		"LB_UPDATE: <@1> Diamond ten Master 20 2026-02-14":        "not an integer",
		"LB_UPDATE: <@1> Diamond 10 Master 20 2026-02-30":         "not a calendar date",
		"LB_UPDATE: <@1> Diamond 10 Master 20 14-02-2026":         "YYYY-MM-DD",
		"LB_UPDATE: user Diamond 10 Master 20 2026-02-14":         "mention",
		"LB_UPDATE: <@1> <>() 10 Master 20 2026-02-14":            "current tier",
		"LB_UPDATE: <@1> Diamond 10 ;; 20 2026-02-14":             "peak tier",
		"LB_UPDATE: <@1> Diamond 10 Master 99999999999 2026-02-14": "out of range",
	}
	p := NewParser("")
	for content, want := range cases {
		_, res := p.Parse(msg("9", content))
		if res.Kind != Failed {
			t.Fatalf("%q: expected failed, got %v", content, res.Kind)
		}
		if !strings.Contains(res.Reason, want) {
			t.Fatalf("%q: reason %q does not mention %q", content, res.Reason, want)
		}
	}
}

func TestParse_NonCandidateSkipped(t *testing.T) {
	p := NewParser("")
	for _, c := range []string{"hello there", "", "lb_update: <@1> a 1 b 2 2026-01-01", "say LB_UPDATE: <@1> a 1 b 2 2026-01-01"} {
		if _, res := p.Parse(msg("1", c)); res.Kind != Skipped {
			t.Fatalf("%q: expected skipped, got %v", c, res.Kind)
		}
	}
}

func TestParse_CustomPrefixAndMultiline(t *testing.T) {
	p := NewParser("!rank")
	u, res := p.Parse(msg("5", "weekly results\n!rank <@3> Silver 5 Gold 9 2026-03-01\n!rank <@4> Silver 5 Gold 9 2026-03-01"))
	if res.Kind != Parsed || u.EntityID != "3" {
		t.Fatalf("expected first candidate line: %+v %+v", u, res)
	}
}

func TestParseBatch_Buckets(t *testing.T) {
	b := NewParser("").ParseBatch([]model.Message{
		msg("1", "LB_UPDATE: <@1> Gold 10 Gold 12 2026-01-01"),
		msg("2", "chatter"),
		msg("3", "LB_UPDATE: @user Diamond -5 Master 2610 2026-02-14"),
		msg("4", "LB_UPDATE: <@2> Gold 10 Gold 12 2026-01-02 extra"),
	})
	if len(b.Parsed) != 2 || len(b.Failed) != 1 || len(b.Skipped) != 1 {
		t.Fatalf("buckets: parsed=%d failed=%d skipped=%d", len(b.Parsed), len(b.Failed), len(b.Skipped))
	}
	if b.Failed[0].MessageID != "3" || b.Skipped[0] != "2" {
		t.Fatalf("bucket ids: %+v %+v", b.Failed, b.Skipped)
	}
	if b.Parsed[0].MessageID != "1" || b.Parsed[1].MessageID != "4" {
		t.Fatalf("parsed order not preserved: %+v", b.Parsed)
	}
	if b.Flagged != 1 {
		t.Fatalf("flagged: got %d want 1", b.Flagged)
	}
}
