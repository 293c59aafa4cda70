package models

import "time"

// Speaker identifies who produced a transcript fragment or line.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Label is the speaker name used in the persisted transcript text.
func (s Speaker) Label() string {
	if s == SpeakerAgent {
		return "ASSISTANT"
	}
	return "USER"
}

type SessionState string

const (
	SessionIdle    SessionState = "idle"
	SessionLoading SessionState = "loading"
	SessionActive  SessionState = "active"
	SessionEnding  SessionState = "ending"
	SessionEnded   SessionState = "ended"
	SessionFailed  SessionState = "failed"
)

// Session is one live interview visit: created on mount, destroyed on unmount.
type Session struct {
	SessionID string       `json:"session_id"` // room id, uuid v4
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	State     SessionState `json:"state"`
}

// TranscriptEntry is one finalized line. Immutable once appended; lines are
// ordered by append time and never reordered or removed.
type TranscriptEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
}

// PendingChunk is the per-speaker scratch buffer for in-progress speech.
// At most one exists per speaker; it is not part of the transcript until
// flushed.
type PendingChunk struct {
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	LastUpdate time.Time `json:"last_update"`
}
