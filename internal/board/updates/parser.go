// Package updates turns raw channel messages into validated update records.
//
// The command grammar is a single line:
//
//	LB_UPDATE: <@id> <currentTier> <currentScore> <peakTier> <peakScore> <YYYY-MM-DD>
//
// Messages that do not start with the prefix are skipped; prefixed messages that do not
// match the grammar fail with a reason. Tokens after the sixth are ignored but flagged.
package updates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ladderboard.ai/internal/board/model"
)

const DefaultPrefix = "LB_UPDATE:"

const requiredTokens = 6

var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)

type Kind int

const (
	Skipped Kind = iota
	Parsed
	Failed
)

func (k Kind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

type Result struct {
	Kind   Kind
	Reason string
	// Extra counts trailing tokens beyond the grammar.
	Extra int
}

type Failure struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

// Batch is the outcome of parsing a sequence of messages, in message order.
type Batch struct {
	Parsed  []model.Update
	Failed  []Failure
	Skipped []string
	// Flagged counts parsed updates that carried ignored trailing tokens.
	Flagged int
}

type Parser struct {
	Prefix string
}

func NewParser(prefix string) Parser {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Parser{Prefix: prefix}
}

// Parse inspects one message. Only the first line starting with the prefix is considered.
func (p Parser) Parse(msg model.Message) (model.Update, Result) {
	prefix := p.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	line, ok := candidateLine(msg.Content, prefix)
	if !ok {
		return model.Update{}, Result{Kind: Skipped}
	}
	u, extra, err := parseLine(strings.TrimPrefix(line, prefix))
	if err != nil {
		return model.Update{}, Result{Kind: Failed, Reason: err.Error()}
	}
	u.MessageID = msg.ID
	return u, Result{Kind: Parsed, Extra: extra}
}

func (p Parser) ParseBatch(msgs []model.Message) Batch {
	var b Batch
	for _, m := range msgs {
		u, res := p.Parse(m)
		switch res.Kind {
		case Parsed:
			b.Parsed = append(b.Parsed, u)
			if res.Extra > 0 {
				b.Flagged++
			}
		case Failed:
			b.Failed = append(b.Failed, Failure{MessageID: m.ID, Reason: res.Reason})
		default:
			b.Skipped = append(b.Skipped, m.ID)
		}
	}
	return b
}

func candidateLine(content, prefix string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			return line, true
		}
	}
	return "", false
}

func parseLine(rest string) (model.Update, int, error) {
	fields := strings.Fields(rest)
	if len(fields) < requiredTokens {
		return model.Update{}, 0, fmt.Errorf("expected %d fields, got %d", requiredTokens, len(fields))
	}
	extra := len(fields) - requiredTokens

	cur, err := parseScore("current score", fields[2])
	if err != nil {
		return model.Update{}, 0, err
	}
	peak, err := parseScore("peak score", fields[4])
	if err != nil {
		return model.Update{}, 0, err
	}
	date, err := model.ParseDate(fields[5])
	if err != nil {
		return model.Update{}, 0, err
	}
	m := mentionPattern.FindStringSubmatch(fields[0])
	if m == nil {
		return model.Update{}, 0, fmt.Errorf("mention %q: want <@id>", fields[0])
	}
	curTier := model.SanitizeTier(fields[1])
	if curTier == "" {
		return model.Update{}, 0, fmt.Errorf("current tier %q is empty after sanitizing", fields[1])
	}
	peakTier := model.SanitizeTier(fields[3])
	if peakTier == "" {
		return model.Update{}, 0, fmt.Errorf("peak tier %q is empty after sanitizing", fields[3])
	}

	return model.Update{
		EntityID:     m[1],
		CurrentTier:  curTier,
		CurrentScore: cur,
		PeakTier:     peakTier,
		PeakScore:    peak,
		LastUpdated:  date,
	}, extra, nil
}

func parseScore(name, s string) (int, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", name, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s %d is negative", name, n)
	}
	if n > int64(maxScore) {
		return 0, fmt.Errorf("%s %d is out of range", name, n)
	}
	return int(n), nil
}

const maxScore = 1<<31 - 1
