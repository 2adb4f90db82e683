package model

import "time"

// Message is one raw text message observed on a channel.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id,omitempty"`
	AuthorID  string    `json:"author_id,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
