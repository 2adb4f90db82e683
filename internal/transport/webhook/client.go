// Package webhook talks to the chat platform's REST API: channel history is the update source,
// and a message owned by a webhook is the container a board is rendered into.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ladderboard.ai/internal/board/model"
)

var ErrNotFound = errors.New("webhook: not found")

type Client struct {
	base     string
	botToken string
	http     *http.Client

	// MaxRetries bounds retries on 429 responses.
	MaxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(baseURL, botToken string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}
	return &Client{
		base:       baseURL,
		botToken:   strings.TrimSpace(botToken),
		http:       &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 3,
		sleep:      sleepCtx,
	}, nil
}

type apiMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Author    struct {
		ID string `json:"id"`
	} `json:"author"`
}

func (m apiMessage) toModel() model.Message {
	return model.Message{ID: m.ID, ChannelID: m.ChannelID, AuthorID: m.Author.ID, Content: m.Content, Timestamp: m.Timestamp}
}

// Fetch implements cycle.Source. The API may return newest first; callers sort.
func (c *Client) Fetch(ctx context.Context, channel, after string, limit int) ([]model.Message, error) {
	if c.botToken == "" {
		return nil, fmt.Errorf("webhook fetch: bot token not configured")
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if after != "" && after != model.CursorNone {
		q.Set("after", after)
	}
	var raw []apiMessage
	path := "/channels/" + url.PathEscape(channel) + "/messages?" + q.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, true, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", channel, err)
	}
	out := make([]model.Message, 0, len(raw))
	for _, m := range raw {
		msg := m.toModel()
		if msg.ChannelID == "" {
			msg.ChannelID = channel
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, auth bool, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	for attempt := 0; ; attempt++ {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth {
			req.Header.Set("Authorization", "Bot "+c.botToken)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.MaxRetries {
			wait := retryAfter(resp)
			drain(resp)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			return fmt.Errorf("%s %s status=%d body=%s", method, redact(path), resp.StatusCode, strings.TrimSpace(string(b)))
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
		return nil
	}
}

func retryAfter(resp *http.Response) time.Duration {
	const maxWait = 10 * time.Second
	s := resp.Header.Get("Retry-After")
	if s == "" {
		return time.Second
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return time.Second
	}
	d := time.Duration(f * float64(time.Second))
	if d > maxWait {
		d = maxWait
	}
	return d
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()
}

// redact hides webhook tokens in error messages.
func redact(path string) string {
	parts := strings.Split(path, "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" {
			parts[i+2] = "***"
		}
	}
	return strings.Join(parts, "/")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
