// Package chat keeps the ephemeral, UI-facing message log for one room.
// Messages are never persisted; rapid same-author follow-ups are merged
// into the preceding message instead of appended.
package chat

import (
	"strconv"
	"sync"
	"time"

	"github.com/voxprep/voxprep/internal/models"
)

// CombineWindow is the maximum gap for merging a message into the previous
// one by the same author.
const CombineWindow = 2000 * time.Millisecond

type Log struct {
	mu       sync.Mutex
	messages []models.ChatMessage
	now      func() time.Time
}

func NewLog() *Log {
	return &Log{now: func() time.Time { return time.Now().UTC() }}
}

// Add appends content under author, merging with the immediately preceding
// message iff the author matches and less than the combine window elapsed.
func (l *Log) Add(author, content string) {
	l.AddAt(author, content, l.now())
}

// AddAt is Add with an explicit arrival time.
func (l *Log) AddAt(author, content string, at time.Time) {
	if content == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.messages); n > 0 {
		last := &l.messages[n-1]
		if last.Author == author && at.Sub(last.SentAt) < CombineWindow {
			last.Content = last.Content + " " + content
			last.SentAt = at
			return
		}
	}

	l.messages = append(l.messages, models.ChatMessage{
		ID:      strconv.FormatInt(at.UnixNano(), 10),
		Author:  author,
		Content: content,
		SentAt:  at,
	})
}

// Messages returns a snapshot of the log in append order.
func (l *Log) Messages() []models.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// Clear empties the log. Called on every new room visit so messages never
// leak across rooms.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}
