package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	CursorNone = "none"

	MaxTierLen = 32
	MaxNameLen = 64
)

// Entity is one tracked player: current and all-time-best standing.
type Entity struct {
	ID          string
	DisplayName string

	CurrentTier  string
	CurrentScore int
	PeakTier     string
	PeakScore    int

	LastUpdated Date
}

// Validate checks every invariant an entity must satisfy before it may enter a collection.
func (e Entity) Validate() error {
	if !IsDigits(e.ID) {
		return fmt.Errorf("entity id %q is not numeric", e.ID)
	}
	if e.DisplayName != SanitizeName(e.DisplayName) {
		return fmt.Errorf("entity %s: display name contains reserved characters", e.ID)
	}
	if err := validTier(e.CurrentTier); err != nil {
		return fmt.Errorf("entity %s: current tier: %w", e.ID, err)
	}
	if err := validTier(e.PeakTier); err != nil {
		return fmt.Errorf("entity %s: peak tier: %w", e.ID, err)
	}
	if e.CurrentScore < 0 {
		return fmt.Errorf("entity %s: current score %d < 0", e.ID, e.CurrentScore)
	}
	if e.PeakScore < 0 {
		return fmt.Errorf("entity %s: peak score %d < 0", e.ID, e.PeakScore)
	}
	if e.LastUpdated.IsZero() {
		return fmt.Errorf("entity %s: missing last updated date", e.ID)
	}
	return nil
}

func validTier(s string) error {
	if s == "" {
		return fmt.Errorf("empty")
	}
	if s != SanitizeTier(s) {
		return fmt.Errorf("%q contains reserved characters", s)
	}
	return nil
}

// Update is a proposed replacement for one entity, carrying the id of the message it came from.
type Update struct {
	EntityID     string
	CurrentTier  string
	CurrentScore int
	PeakTier     string
	PeakScore    int
	LastUpdated  Date

	MessageID string
}

func (u Update) Entity() Entity {
	return Entity{
		ID:           u.EntityID,
		CurrentTier:  u.CurrentTier,
		CurrentScore: u.CurrentScore,
		PeakTier:     u.PeakTier,
		PeakScore:    u.PeakScore,
		LastUpdated:  u.LastUpdated,
	}
}

func (u Update) Validate() error { return u.Entity().Validate() }

// SanitizeTier strips characters that could break the container layout and bounds the length.
func SanitizeTier(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'', ';', '(', ')', '|', '`', '[', ']', '\n', '\r':
			return -1
		}
		return r
	}, s)
	return truncateRunes(strings.TrimSpace(s), MaxTierLen)
}

// SanitizeName makes a display name safe for a single pipe-delimited line. Brackets are
// dropped so a name can never spell a section marker.
func SanitizeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '|', '\n', '\r':
			return ' '
		case '[', ']':
			return -1
		}
		return r
	}, s)
	return truncateRunes(strings.TrimSpace(s), MaxNameLen)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// CompareMessageIDs orders numeric message identifiers (snowflakes) without parsing them,
// so ids wider than 64 bits still compare correctly. CursorNone sorts before everything.
func CompareMessageIDs(a, b string) int {
	if a == b {
		return 0
	}
	if a == CursorNone || a == "" {
		return -1
	}
	if b == CursorNone || b == "" {
		return 1
	}
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
