package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeFetch   = "FETCH"
	TypeBatch   = "BATCH"
	TypePost    = "POST"
	TypeAck     = "ACK"
	TypeError   = "ERROR"
)

// MaxFetchLimit bounds a single FETCH page.
const MaxFetchLimit = 100

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
