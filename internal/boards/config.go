package boards

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"ladderboard.ai/internal/board/model"
	"ladderboard.ai/internal/board/render"
	"ladderboard.ai/internal/board/updates"
)

//go:embed boards.schema.json
var schemaJSON string

var ErrNoBoards = errors.New("no boards configured")

type Config struct {
	UpdatePrefix       string      `yaml:"update_prefix"`
	MaxMessagesPerPass int         `yaml:"max_messages_per_pass"`
	PageSize           int         `yaml:"page_size"`
	SizeCeiling        int         `yaml:"size_ceiling"`
	Boards             []BoardSpec `yaml:"boards"`
}

// BoardSpec is one tracked game: where updates are read from and where the container lives.
type BoardSpec struct {
	ID        string `yaml:"id"`
	Label     string `yaml:"label"`
	Channel   string `yaml:"channel"`
	Container string `yaml:"container"`
	// Cursor seeds the first fetch when the container holds no state yet.
	Cursor   string `yaml:"cursor,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	cfg := defaults()
	if err := validateSchema(b); err != nil {
		return cfg, fmt.Errorf("boards.yaml: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("boards.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("boards.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		UpdatePrefix:       updates.DefaultPrefix,
		MaxMessagesPerPass: 500,
		PageSize:           100,
		SizeCeiling:        render.DefaultCeiling,
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.UpdatePrefix = strings.TrimSpace(c.UpdatePrefix)
	if c.UpdatePrefix == "" {
		c.UpdatePrefix = updates.DefaultPrefix
	}
	if c.MaxMessagesPerPass <= 0 {
		c.MaxMessagesPerPass = 500
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.PageSize > c.MaxMessagesPerPass {
		c.PageSize = c.MaxMessagesPerPass
	}
	if c.SizeCeiling <= 0 {
		c.SizeCeiling = render.DefaultCeiling
	}
	for i := range c.Boards {
		b := &c.Boards[i]
		b.ID = strings.TrimSpace(b.ID)
		b.Channel = strings.TrimSpace(b.Channel)
		b.Container = strings.TrimSpace(b.Container)
		b.Cursor = strings.TrimSpace(b.Cursor)
		if strings.TrimSpace(b.Label) == "" {
			b.Label = b.ID
		}
		if b.Cursor == "" {
			b.Cursor = model.CursorNone
		}
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Boards) == 0 {
		return ErrNoBoards
	}
	seen := map[string]bool{}
	containers := map[string]string{}
	for _, b := range c.Boards {
		if b.ID == "" {
			return fmt.Errorf("board id must not be empty")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate board id: %s", b.ID)
		}
		seen[b.ID] = true
		if b.Channel == "" {
			return fmt.Errorf("board %s channel must not be empty", b.ID)
		}
		if b.Container == "" {
			return fmt.Errorf("board %s container must not be empty", b.ID)
		}
		if other, ok := containers[b.Container]; ok {
			return fmt.Errorf("board %s shares container %s with board %s", b.ID, b.Container, other)
		}
		containers[b.Container] = b.ID
		if b.Cursor != model.CursorNone && !model.IsDigits(b.Cursor) {
			return fmt.Errorf("board %s cursor %q must be a message id or none", b.ID, b.Cursor)
		}
	}
	return nil
}

// Active returns enabled boards sorted by id, the order a cycle visits them in.
func (c Config) Active() []BoardSpec {
	out := make([]BoardSpec, 0, len(c.Boards))
	for _, b := range c.Boards {
		if !b.Disabled {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c Config) BoardByID(id string) (BoardSpec, bool) {
	for _, b := range c.Boards {
		if b.ID == id {
			return b, true
		}
	}
	return BoardSpec{}, false
}

func validateSchema(doc []byte) error {
	var raw any
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON types only.
	jb, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("boards.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return err
	}
	s, err := c.Compile("boards.schema.json")
	if err != nil {
		return err
	}
	return s.Validate(v)
}
