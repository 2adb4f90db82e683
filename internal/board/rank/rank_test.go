package rank

import (
	"fmt"
	"math/rand"
	"testing"

	"ladderboard.ai/internal/board/model"
)

func ent(id string, cur, peak int, date string) model.Entity {
	return model.Entity{ID: id, CurrentTier: "T", CurrentScore: cur, PeakTier: "T", PeakScore: peak, LastUpdated: model.MustDate(date)}
}

func ids(es []model.Entity) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID)
	}
	return out
}

func TestRank_PeakBreaksTie(t *testing.T) {
	in := []model.Entity{
		ent("1", 2450, 2610, "2026-02-14"),
		ent("2", 2450, 2700, "2026-02-13"),
		ent("3", 1980, 2100, "2026-02-10"),
	}
	got := ids(Rank(in))
	want := []string{"2", "1", "3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v want %v", got, want)
		}
	}
	if in[0].ID != "1" {
		t.Fatalf("input mutated")
	}
}

func TestRank_DateThenID(t *testing.T) {
	in := []model.Entity{
		ent("20", 10, 10, "2026-01-01"),
		ent("3", 10, 10, "2026-01-01"),
		ent("5", 10, 10, "2026-01-02"),
	}
	got := ids(Rank(in))
	want := []string{"5", "3", "20"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v want %v", got, want)
		}
	}
}

func TestRank_IdempotentAndDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	var in []model.Entity
	for i := 0; i < 40; i++ {
		in = append(in, ent(fmt.Sprintf("%d", 100+i), r.Intn(4), r.Intn(3), fmt.Sprintf("2026-01-0%d", 1+r.Intn(3))))
	}
	once := Rank(in)
	twice := Rank(once)
	r.Shuffle(len(in), func(i, j int) { in[i], in[j] = in[j], in[i] })
	shuffled := Rank(in)
	for i := range once {
		if once[i].ID != twice[i].ID || once[i].ID != shuffled[i].ID {
			t.Fatalf("position %d: %s / %s / %s", i, once[i].ID, twice[i].ID, shuffled[i].ID)
		}
	}
}
