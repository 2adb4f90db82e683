package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ladderboard.ai/internal/board/model"
	"ladderboard.ai/internal/protocol"
)

// RemoteError is an ERROR reply from the feed server.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return fmt.Sprintf("feed %s: %s", e.Code, e.Message) }

// Client is a request/response feed connection. It is safe for concurrent use; requests are
// serialized on the single connection.
type Client struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	seq     uint64
	Welcome protocol.WelcomeMsg
}

func Dial(ctx context.Context, url, clientName, token string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{conn: conn}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      clientName,
		Token:           token,
	}
	c.setDeadline(ctx)
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send HELLO: %w", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read WELCOME: %w", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	switch base.Type {
	case protocol.TypeWelcome:
		if err := json.Unmarshal(msg, &c.Welcome); err != nil {
			_ = conn.Close()
			return nil, err
		}
	case protocol.TypeError:
		_ = conn.Close()
		return nil, decodeError(msg)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("expected WELCOME, got %s", base.Type)
	}
	return c, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

// Fetch implements cycle.Source.
func (c *Client) Fetch(ctx context.Context, channel, after string, limit int) ([]model.Message, error) {
	if n := c.Welcome.MaxFetchLimit; n > 0 && limit > n {
		limit = n
	}
	var batch protocol.BatchMsg
	err := c.roundTrip(ctx, protocol.TypeBatch, &batch, func(id string) any {
		return protocol.FetchMsg{
			Type:            protocol.TypeFetch,
			ProtocolVersion: protocol.Version,
			RequestID:       id,
			Channel:         channel,
			After:           after,
			Limit:           limit,
		}
	})
	if err != nil {
		return nil, err
	}
	return batch.Messages, nil
}

// Post appends content to a channel and returns the assigned message id.
func (c *Client) Post(ctx context.Context, channel, authorID, content string) (string, error) {
	var ack protocol.AckMsg
	err := c.roundTrip(ctx, protocol.TypeAck, &ack, func(id string) any {
		return protocol.PostMsg{
			Type:            protocol.TypePost,
			ProtocolVersion: protocol.Version,
			RequestID:       id,
			Channel:         channel,
			AuthorID:        authorID,
			Content:         content,
		}
	})
	return ack.MessageID, err
}

func (c *Client) roundTrip(ctx context.Context, want string, out any, build func(id string) any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	id := "R" + strconv.FormatUint(c.seq, 10)
	c.setDeadline(ctx)
	if err := c.conn.WriteJSON(build(id)); err != nil {
		return fmt.Errorf("feed write: %w", err)
	}
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed read: %w", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		// Replies to earlier timed-out requests are skipped.
		if base.RequestID != "" && base.RequestID != id {
			continue
		}
		switch base.Type {
		case want:
			return json.Unmarshal(msg, out)
		case protocol.TypeError:
			return decodeError(msg)
		}
	}
}

func (c *Client) setDeadline(ctx context.Context) {
	dl, ok := ctx.Deadline()
	if !ok {
		dl = time.Now().Add(30 * time.Second)
	}
	_ = c.conn.SetWriteDeadline(dl)
	_ = c.conn.SetReadDeadline(dl)
}

func decodeError(msg []byte) error {
	var e protocol.ErrorMsg
	if err := json.Unmarshal(msg, &e); err != nil {
		return err
	}
	return &RemoteError{Code: e.Code, Message: e.Message}
}
