package boards

import (
	"sort"
	"strings"
)

const envPrefix = "LB_BOARD_"

// ApplyEnv overlays boards described by environment variables of the form
// LB_BOARD_<ID>_CHANNEL, _CONTAINER, _LABEL and _CURSOR. Ids are lower-cased; variables
// for an id not present in the file create a new board. Call Validate afterwards.
func ApplyEnv(cfg *Config, environ []string) {
	if cfg == nil {
		return
	}
	type fields map[string]string
	found := map[string]fields{}
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, envPrefix)
		i := strings.LastIndex(rest, "_")
		if i <= 0 {
			continue
		}
		id := strings.ToLower(rest[:i])
		field := rest[i+1:]
		switch field {
		case "CHANNEL", "CONTAINER", "LABEL", "CURSOR":
		default:
			continue
		}
		if found[id] == nil {
			found[id] = fields{}
		}
		found[id][field] = strings.TrimSpace(val)
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		f := found[id]
		idx := -1
		for i := range cfg.Boards {
			if cfg.Boards[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			cfg.Boards = append(cfg.Boards, BoardSpec{ID: id})
			idx = len(cfg.Boards) - 1
		}
		b := &cfg.Boards[idx]
		if v := f["CHANNEL"]; v != "" {
			b.Channel = v
		}
		if v := f["CONTAINER"]; v != "" {
			b.Container = v
		}
		if v := f["LABEL"]; v != "" {
			b.Label = v
		}
		if v := f["CURSOR"]; v != "" {
			b.Cursor = v
		}
	}
	cfg.Normalize()
}
