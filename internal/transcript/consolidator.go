// Package transcript consolidates the high-frequency stream of partial
// speech fragments into readable timestamped lines and guarantees the
// finalized transcript is persisted exactly once per session, however the
// session ends.
package transcript

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voxprep/voxprep/internal/models"
)

// DebounceWindow is the silence gap treated as an utterance boundary.
// Heuristic, not true ASR segmentation.
const DebounceWindow = 1000 * time.Millisecond

// Store is the external persistence call for finalized transcripts.
type Store interface {
	SaveTranscript(ctx context.Context, sessionID, text string) error
}

// Consolidator accumulates fragments per speaker. Memory is bounded to one
// pending chunk per speaker regardless of session length.
type Consolidator struct {
	mu        sync.Mutex
	sessionID string
	startedAt time.Time
	lines     []models.TranscriptEntry
	pending   map[models.Speaker]*models.PendingChunk
	ended     bool

	store Store
	log   *logrus.Entry
	now   func() time.Time
}

func NewConsolidator(sessionID string, startedAt time.Time, store Store, log *logrus.Logger) *Consolidator {
	if log == nil {
		log = logrus.New()
	}
	return &Consolidator{
		sessionID: sessionID,
		startedAt: startedAt.UTC(),
		pending:   make(map[models.Speaker]*models.PendingChunk, 2),
		store:     store,
		log:       log.WithFields(logrus.Fields{"component": "consolidator", "session_id": sessionID}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AddFragment records one incremental piece of speech-to-text output.
func (c *Consolidator) AddFragment(speaker models.Speaker, text string) {
	c.AddFragmentAt(speaker, text, c.now())
}

// AddFragmentAt is AddFragment with an explicit arrival time. Fragments are
// consolidated in arrival order; the timestamp drives only the gap
// heuristic, never reordering.
func (c *Consolidator) AddFragmentAt(speaker models.Speaker, text string, at time.Time) {
	if text == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return
	}

	chunk, ok := c.pending[speaker]
	if !ok || at.Sub(chunk.LastUpdate) > DebounceWindow {
		c.flushLocked(speaker)
		c.pending[speaker] = &models.PendingChunk{Speaker: speaker, Text: text, LastUpdate: at}
		return
	}

	chunk.Text = chunk.Text + " " + text
	chunk.LastUpdate = at
}

// flushLocked finalizes the pending chunk for speaker, if any and non-empty.
func (c *Consolidator) flushLocked(speaker models.Speaker) {
	chunk, ok := c.pending[speaker]
	if !ok {
		return
	}
	delete(c.pending, speaker)
	if strings.TrimSpace(chunk.Text) == "" {
		return
	}
	c.lines = append(c.lines, models.TranscriptEntry{
		Timestamp: chunk.LastUpdate,
		Speaker:   speaker,
		Text:      chunk.Text,
	})
}

// Lines returns a snapshot of the finalized lines in append order.
func (c *Consolidator) Lines() []models.TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.TranscriptEntry, len(c.lines))
	copy(out, c.lines)
	return out
}

// Ended reports whether the session transcript has been finalized.
func (c *Consolidator) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// EndSession flushes both pending chunks unconditionally (even inside the
// debounce window), hands the joined text to the session store, and resets
// all state. A second call, from any exit path racing with the first, is a
// no-op. A persistence failure is logged and the in-memory transcript is
// discarded; there is no retry.
func (c *Consolidator) EndSession(ctx context.Context) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true

	// flush both pending chunks in arrival order
	user, agent := c.pending[models.SpeakerUser], c.pending[models.SpeakerAgent]
	if user != nil && agent != nil && agent.LastUpdate.Before(user.LastUpdate) {
		c.flushLocked(models.SpeakerAgent)
		c.flushLocked(models.SpeakerUser)
	} else {
		c.flushLocked(models.SpeakerUser)
		c.flushLocked(models.SpeakerAgent)
	}

	text := c.renderLocked(c.now())
	c.lines = nil
	c.pending = make(map[models.Speaker]*models.PendingChunk, 2)
	c.mu.Unlock()

	if err := c.store.SaveTranscript(ctx, c.sessionID, text); err != nil {
		c.log.WithError(err).Error("transcript persistence failed; discarding")
		return
	}
	c.log.Info("transcript persisted")
}

// Discard finalizes the session without persisting anything. Marks the
// session ended so a later teardown cannot resurrect and save it.
func (c *Consolidator) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.ended = true
	c.lines = nil
	c.pending = make(map[models.Speaker]*models.PendingChunk, 2)
}

// renderLocked produces the persisted transcript text: a header naming the
// session and start time, one block per line, and an end marker.
func (c *Consolidator) renderLocked(endedAt time.Time) string {
	var b strings.Builder
	b.WriteString("=== Interview Session " + c.sessionID + " ===\n")
	b.WriteString("Started: " + c.startedAt.Format(time.RFC3339) + "\n\n")
	for _, line := range c.lines {
		b.WriteString("[" + line.Timestamp.UTC().Format("15:04:05") + "] " + line.Speaker.Label() + ":\n")
		b.WriteString(line.Text + "\n\n")
	}
	b.WriteString("Ended: " + endedAt.UTC().Format(time.RFC3339) + "\n")
	return b.String()
}
