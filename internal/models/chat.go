package models

import "time"

// ChatMessage is an ephemeral UI-facing message. It is never persisted and
// may be mutated in place when a rapid same-author follow-up is merged in.
type ChatMessage struct {
	ID      string    `json:"id"` // derived from creation time
	Author  string    `json:"author"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}
