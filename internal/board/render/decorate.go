package render

import (
	"context"
	"log"

	"ladderboard.ai/internal/board/model"
)

// NameResolver looks up a display name for an entity id. Implementations may be slow or fail.
type NameResolver interface {
	ResolveName(ctx context.Context, id string) (string, error)
}

// Decorate fills display names on a copy of entities. Entities without a name are always
// looked up; ids in refresh are looked up again. Lookup failures keep the previous name.
func Decorate(ctx context.Context, r NameResolver, entities []model.Entity, refresh map[string]bool, logger *log.Logger) ([]model.Entity, int) {
	out := make([]model.Entity, len(entities))
	copy(out, entities)
	if r == nil {
		return out, 0
	}
	failed := 0
	for i := range out {
		if out[i].DisplayName != "" && !refresh[out[i].ID] {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		name, err := r.ResolveName(ctx, out[i].ID)
		if err != nil {
			failed++
			if logger != nil {
				logger.Printf("resolve name id=%s: %v", out[i].ID, err)
			}
			continue
		}
		if name = model.SanitizeName(name); name != "" {
			out[i].DisplayName = name
		}
	}
	return out, failed
}
