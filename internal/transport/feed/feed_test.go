package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ladderboard.ai/internal/board/model"
	"ladderboard.ai/internal/protocol"
)

type memInbox struct {
	mu   sync.Mutex
	next int
	msgs []model.Message
}

func (m *memInbox) Fetch(_ context.Context, channel, after string, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Message
	for _, msg := range m.msgs {
		if msg.ChannelID == channel && model.CompareMessageIDs(msg.ID, after) > 0 && len(out) < limit {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memInbox) Append(_ context.Context, msg model.Message) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	msg.ID = fmt.Sprintf("%d", 100+m.next)
	m.msgs = append(m.msgs, msg)
	return msg, nil
}

func startServer(t *testing.T, channels []string, token string) (*Server, string) {
	t.Helper()
	s := NewServer(&memInbox{}, channels, token, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFeed_PostThenFetch(t *testing.T) {
	s, url := startServer(t, []string{"c1"}, "")
	ctx := testCtx(t)
	c, err := Dial(ctx, url, "sync", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if len(c.Welcome.Channels) != 1 || c.Welcome.MaxFetchLimit != protocol.MaxFetchLimit {
		t.Fatalf("welcome: %+v", c.Welcome)
	}

	for i := 0; i < 3; i++ {
		id, err := c.Post(ctx, "c1", "42", fmt.Sprintf("LB_UPDATE: <@1> Gold %d Gold %d 2026-02-1%d", i, i, i))
		if err != nil || id == "" {
			t.Fatalf("post %d: %q %v", i, id, err)
		}
	}
	msgs, err := c.Fetch(ctx, "c1", model.CursorNone, 2)
	if err != nil || len(msgs) != 2 || msgs[0].ID != "101" || msgs[0].AuthorID != "42" {
		t.Fatalf("fetch: %+v %v", msgs, err)
	}
	rest, err := c.Fetch(ctx, "c1", msgs[1].ID, 10)
	if err != nil || len(rest) != 1 || rest[0].ID != "103" {
		t.Fatalf("fetch after: %+v %v", rest, err)
	}
	if st := s.Stats(); st.Posts != 3 || st.Fetches != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestFeed_ChannelDenied(t *testing.T) {
	_, url := startServer(t, []string{"c1"}, "")
	ctx := testCtx(t)
	c, err := Dial(ctx, url, "sync", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	_, err = c.Fetch(ctx, "c2", model.CursorNone, 10)
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != protocol.ErrChannelDenied {
		t.Fatalf("expected channel denied, got %v", err)
	}
	_, err = c.Fetch(ctx, "c1", "abc", 10)
	if !errors.As(err, &re) || re.Code != protocol.ErrBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
	// The connection stays usable after an error reply.
	if _, err := c.Fetch(ctx, "c1", model.CursorNone, 10); err != nil {
		t.Fatalf("fetch after error: %v", err)
	}
}

func TestFeed_TokenRequired(t *testing.T) {
	_, url := startServer(t, nil, "s3cret")
	ctx := testCtx(t)
	_, err := Dial(ctx, url, "sync", "wrong")
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != protocol.ErrUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	c, err := Dial(ctx, url, "sync", "s3cret")
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	_ = c.Close()
}

func TestFeed_RejectsWrongVersion(t *testing.T) {
	_, url := startServer(t, nil, "")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.9", ClientName: "old"})
	var e protocol.ErrorMsg
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	if e.Type != protocol.TypeError || e.Code != protocol.ErrProtoVersion {
		t.Fatalf("reply: %+v", e)
	}
}
