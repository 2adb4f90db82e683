package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ladderboard.ai/internal/board/model"
)

type fakeAPI struct {
	messages  map[string]string
	throttled int
	history   []apiMessage
	lastAfter string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.throttled > 0 {
		f.throttled--
		w.Header().Set("Retry-After", "0.01")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 5 && parts[0] == "webhooks":
		if parts[2] != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		text, ok := f.messages[parts[4]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodPatch {
			var body struct {
				Content string `json:"content"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.messages[parts[4]] = body.Content
			text = body.Content
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": parts[4], "content": text})
	case len(parts) == 3 && parts[0] == "channels":
		if r.Header.Get("Authorization") != "Bot bt" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.lastAfter = r.URL.Query().Get("after")
		_ = json.NewEncoder(w).Encode(f.history)
	case len(parts) == 4 && parts[0] == "guilds":
		nick := "Ace"
		_ = json.NewEncoder(w).Encode(map[string]any{"nick": &nick, "user": map[string]any{"username": "ace99"}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, f *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "bt")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestContainerStore_LoadSave(t *testing.T) {
	f := &fakeAPI{messages: map[string]string{"555": "old board"}}
	c := newTestClient(t, f)
	s, err := NewContainerStore(c, "1", "tok")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ctx := context.Background()

	text, found, err := s.Load(ctx, "555")
	if err != nil || !found || text != "old board" {
		t.Fatalf("load: %q %v %v", text, found, err)
	}
	if err := s.Save(ctx, "555", "[DATA:v1]\nLAST:none\n[/DATA]"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if f.messages["555"] != "[DATA:v1]\nLAST:none\n[/DATA]" {
		t.Fatalf("not edited: %q", f.messages["555"])
	}
	if _, found, err := s.Load(ctx, "777"); err != nil || found {
		t.Fatalf("missing message: %v %v", found, err)
	}
	if err := s.Save(ctx, "777", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("save to missing message: %v", err)
	}
	if _, _, err := s.Load(ctx, "abc"); err == nil {
		t.Fatalf("expected non-numeric container to be rejected")
	}
}

func TestFetch_RetriesOnRateLimit(t *testing.T) {
	f := &fakeAPI{throttled: 2}
	f.history = []apiMessage{{ID: "12", Content: "b"}, {ID: "11", Content: "a"}}
	f.history[0].Author.ID = "9"
	c := newTestClient(t, f)

	msgs, err := c.Fetch(context.Background(), "c1", "10", 50)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ChannelID != "c1" || msgs[0].AuthorID != "9" || f.lastAfter != "10" {
		t.Fatalf("msgs=%+v after=%q", msgs, f.lastAfter)
	}
	if _, err := c.Fetch(context.Background(), "c1", model.CursorNone, 50); err != nil || f.lastAfter != "" {
		t.Fatalf("none cursor should omit after: %q %v", f.lastAfter, err)
	}
}

func TestFetch_GivesUpAfterRetries(t *testing.T) {
	f := &fakeAPI{throttled: 10}
	c := newTestClient(t, f)
	if _, err := c.Fetch(context.Background(), "c1", "1", 5); err == nil || !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestMemberResolver(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	name, err := NewMemberResolver(c, "g1").ResolveName(context.Background(), "1")
	if err != nil || name != "Ace" {
		t.Fatalf("resolve: %q %v", name, err)
	}
	if _, err := NewMemberResolver(c, "").ResolveName(context.Background(), "1"); err == nil {
		t.Fatalf("expected error without guild")
	}
}

func TestRedact(t *testing.T) {
	if got := redact("/webhooks/1/secret/messages/5"); strings.Contains(got, "secret") {
		t.Fatalf("token leaked: %s", got)
	}
}
