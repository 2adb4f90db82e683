// Package feed serves channel messages over a websocket so sync passes and bots can run on
// other hosts than the message inbox.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ladderboard.ai/internal/board/model"
	"ladderboard.ai/internal/protocol"
)

// Inbox is the message store behind the feed.
type Inbox interface {
	Fetch(ctx context.Context, channel, after string, limit int) ([]model.Message, error)
	Append(ctx context.Context, m model.Message) (model.Message, error)
}

type Stats struct {
	Connections uint64
	Fetches     uint64
	Posts       uint64
	Errors      uint64
}

type Server struct {
	inbox    Inbox
	channels map[string]bool
	token    string
	log      *log.Logger

	upgrader websocket.Upgrader

	connections atomic.Uint64
	fetches     atomic.Uint64
	posts       atomic.Uint64
	errors      atomic.Uint64
}

// NewServer serves the given channels; an empty list allows any channel. A non-empty token must
// be presented in HELLO.
func NewServer(inbox Inbox, channels []string, token string, logger *log.Logger) *Server {
	allowed := map[string]bool{}
	for _, c := range channels {
		if c = strings.TrimSpace(c); c != "" {
			allowed[c] = true
		}
	}
	return &Server{
		inbox:    inbox,
		channels: allowed,
		token:    token,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Stats() Stats {
	return Stats{
		Connections: s.connections.Load(),
		Fetches:     s.fetches.Load(),
		Posts:       s.posts.Load(),
		Errors:      s.errors.Load(),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.connections.Add(1)
		s.printf("feed client=%s connected from %s", client, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := s.handle(ctx, client, msg)
			if reply == nil {
				continue
			}
			if err := writeJSON(conn, reply); err != nil {
				break
			}
		}
		s.printf("feed client=%s disconnected", client)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, errorMsg("", protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version))
		return "", false
	}
	if s.token != "" && hello.Token != s.token {
		_ = writeJSON(conn, errorMsg("", protocol.ErrUnauthorized, "bad token"))
		return "", false
	}
	name := strings.TrimSpace(hello.ClientName)
	if name == "" {
		name = "client"
	}

	chans := make([]string, 0, len(s.channels))
	for c := range s.channels {
		chans = append(chans, c)
	}
	sort.Strings(chans)
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		Channels:        chans,
		MaxFetchLimit:   protocol.MaxFetchLimit,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", false
	}
	return name, true
}

func (s *Server) handle(ctx context.Context, client string, msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return s.fail("", protocol.ErrProtoBadRequest, "invalid json")
	}
	if base.ProtocolVersion != protocol.Version {
		return s.fail(base.RequestID, protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version)
	}
	switch base.Type {
	case protocol.TypeFetch:
		var req protocol.FetchMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return s.fail(base.RequestID, protocol.ErrProtoBadRequest, "bad FETCH")
		}
		return s.fetch(ctx, req)
	case protocol.TypePost:
		var req protocol.PostMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return s.fail(base.RequestID, protocol.ErrProtoBadRequest, "bad POST")
		}
		return s.post(ctx, client, req)
	default:
		return s.fail(base.RequestID, protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected message type %q", base.Type))
	}
}

func (s *Server) fetch(ctx context.Context, req protocol.FetchMsg) any {
	if code, msg := s.checkChannel(req.Channel); code != "" {
		return s.fail(req.RequestID, code, msg)
	}
	after := strings.TrimSpace(req.After)
	if after == "" {
		after = model.CursorNone
	}
	if after != model.CursorNone && !model.IsDigits(after) {
		return s.fail(req.RequestID, protocol.ErrBadRequest, "after must be a message id or none")
	}
	if req.Limit <= 0 {
		return s.fail(req.RequestID, protocol.ErrBadRequest, "limit must be positive")
	}
	limit := req.Limit
	if limit > protocol.MaxFetchLimit {
		limit = protocol.MaxFetchLimit
	}
	msgs, err := s.inbox.Fetch(ctx, req.Channel, after, limit)
	if err != nil {
		s.printf("feed fetch channel=%s after=%s: %v", req.Channel, after, err)
		return s.fail(req.RequestID, protocol.ErrInternal, "fetch failed")
	}
	s.fetches.Add(1)
	if msgs == nil {
		msgs = []model.Message{}
	}
	return protocol.BatchMsg{
		Type:            protocol.TypeBatch,
		ProtocolVersion: protocol.Version,
		RequestID:       req.RequestID,
		Channel:         req.Channel,
		Messages:        msgs,
	}
}

func (s *Server) post(ctx context.Context, client string, req protocol.PostMsg) any {
	if code, msg := s.checkChannel(req.Channel); code != "" {
		return s.fail(req.RequestID, code, msg)
	}
	if strings.TrimSpace(req.Content) == "" {
		return s.fail(req.RequestID, protocol.ErrBadRequest, "empty content")
	}
	author := strings.TrimSpace(req.AuthorID)
	if author == "" {
		author = client
	}
	m, err := s.inbox.Append(ctx, model.Message{ChannelID: req.Channel, AuthorID: author, Content: req.Content})
	if err != nil {
		s.printf("feed post channel=%s: %v", req.Channel, err)
		return s.fail(req.RequestID, protocol.ErrInternal, "post failed")
	}
	s.posts.Add(1)
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		RequestID:       req.RequestID,
		MessageID:       m.ID,
	}
}

func (s *Server) checkChannel(channel string) (code, msg string) {
	if strings.TrimSpace(channel) == "" {
		return protocol.ErrBadRequest, "missing channel"
	}
	if len(s.channels) > 0 && !s.channels[channel] {
		return protocol.ErrChannelDenied, "channel not served: " + channel
	}
	return "", ""
}

func (s *Server) fail(requestID, code, msg string) protocol.ErrorMsg {
	s.errors.Add(1)
	return errorMsg(requestID, code, msg)
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func errorMsg(requestID, code, msg string) protocol.ErrorMsg {
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		Code:            code,
		Message:         msg,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
