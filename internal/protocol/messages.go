package protocol

import "ladderboard.ai/internal/board/model"

type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	Token           string `json:"token,omitempty"`
}

type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Channels        []string `json:"channels"`
	MaxFetchLimit   int      `json:"max_fetch_limit"`
}

// FetchMsg asks for up to Limit messages on Channel with ids strictly after After, oldest first.
type FetchMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	Channel         string `json:"channel"`
	After           string `json:"after"`
	Limit           int    `json:"limit"`
}

type BatchMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	RequestID       string          `json:"request_id"`
	Channel         string          `json:"channel"`
	Messages        []model.Message `json:"messages"`
}

// PostMsg appends a message to a channel (used by bots and operators to submit updates).
type PostMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	Channel         string `json:"channel"`
	AuthorID        string `json:"author_id,omitempty"`
	Content         string `json:"content"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	MessageID       string `json:"message_id"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
