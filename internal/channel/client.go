// Package channel maintains the bidirectional streaming connection to the
// remote conversational engine. It forwards microphone audio upstream and
// emits transcription and message events downstream. There is no automatic
// reconnection: a failed channel must be retried explicitly by the caller.
package channel

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/voxprep/voxprep/internal/models"
	"github.com/voxprep/voxprep/internal/utils"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Observer receives channel events. Subscribe returns an unsubscribe func;
// callers must unsubscribe before discarding the client to avoid leaked
// callbacks across reconnect cycles.
type Observer interface {
	OnTranscription(speaker models.Speaker, text string)
	OnMessage(content string)
	OnAudio(pcm []byte)
	OnError(err error)
	OnStateChange(state State)
}

type clientFrame struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64,omitempty"`
	Text    string `json:"text,omitempty"`
}

type serverFrame struct {
	Type    string `json:"type"`
	Source  string `json:"source,omitempty"`
	Text    string `json:"text,omitempty"`
	Content string `json:"content,omitempty"`
	DataB64 string `json:"data_b64,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type Client struct {
	url    string
	dialer *websocket.Dialer
	log    *logrus.Entry

	mu         sync.Mutex
	state      State
	gen        uint64 // bumped on every connect/disconnect; stale attempts compare against it
	conn       *websocket.Conn
	dialCancel context.CancelFunc
	muted      bool

	writeMu sync.Mutex

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int
}

func NewClient(url string, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		url:       url,
		dialer:    &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		log:       log.WithField("component", "channel"),
		state:     StateDisconnected,
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer and returns its unsubscribe func.
func (c *Client) Subscribe(o Observer) (unsubscribe func()) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = o
	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Client) each(fn func(o Observer)) {
	c.obsMu.Lock()
	snapshot := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		snapshot = append(snapshot, o)
	}
	c.obsMu.Unlock()
	for _, o := range snapshot {
		fn(o)
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetMuted flips the soft mute. While muted, audio frames are dropped rather
// than buffered, so resuming produces no backlog.
func (c *Client) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

// Connect dials the engine. A Disconnect issued while the dial is in flight
// supersedes it: the attempt returns CANCELLED and its outcome is discarded.
func (c *Client) Connect(ctx context.Context) error {
	const op = "Channel.Connect"

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "channel is not disconnected", nil)
	}
	c.gen++
	gen := c.gen
	dialCtx, cancel := context.WithCancel(ctx)
	c.dialCancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	c.each(func(o Observer) { o.OnStateChange(StateConnecting) })

	conn, _, err := c.dialer.DialContext(dialCtx, c.url, nil)
	cancel()

	c.mu.Lock()
	if c.gen != gen {
		// superseded by Disconnect; the winner already owns the state
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return utils.E(utils.CodeCancelled, op, "connect superseded by disconnect", nil)
	}
	if err != nil {
		c.state = StateDisconnected
		c.dialCancel = nil
		c.mu.Unlock()
		c.each(func(o Observer) { o.OnStateChange(StateDisconnected) })
		return utils.E(utils.CodeChannelFailed, op, "failed to connect channel", err)
	}
	c.conn = conn
	c.dialCancel = nil
	c.state = StateConnected
	c.mu.Unlock()

	c.each(func(o Observer) { o.OnStateChange(StateConnected) })
	go c.readLoop(conn, gen)
	return nil
}

// Disconnect tears the channel down. Safe to call in any state; a dial in
// flight is cancelled.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	conn := c.conn
	c.conn = nil
	prev := c.state
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if prev != StateDisconnected {
		c.each(func(o Observer) { o.OnStateChange(StateDisconnected) })
	}
}

// SendAudio forwards one PCM frame. Valid only while connected; while muted
// the frame is dropped silently.
func (c *Client) SendAudio(frame []byte) error {
	const op = "Channel.SendAudio"

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return utils.E(utils.CodeChannelFailed, op, "send is valid only while connected", nil)
	}
	if c.muted {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	return c.writeJSON(conn, clientFrame{Type: "audio_frame", DataB64: base64.StdEncoding.EncodeToString(frame)})
}

// SendText forwards a typed user message.
func (c *Client) SendText(text string) error {
	const op = "Channel.SendText"

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return utils.E(utils.CodeChannelFailed, op, "send is valid only while connected", nil)
	}
	conn := c.conn
	c.mu.Unlock()

	return c.writeJSON(conn, clientFrame{Type: "text_input", Text: text})
}

// EndSession tells the engine the session is over. Best effort; the caller
// still disconnects afterwards.
func (c *Client) EndSession() error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.writeJSON(conn, clientFrame{Type: "end_session"})
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}

func (c *Client) currentGen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if c.currentGen() != gen {
				// this connection was already superseded; stay silent
				return
			}
			c.mu.Lock()
			c.conn = nil
			c.state = StateDisconnected
			c.mu.Unlock()

			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				failure := utils.E(utils.CodeChannelFailed, "Channel.Read", "channel closed unexpectedly", err)
				c.log.WithError(err).Warn("channel read failed")
				c.each(func(o Observer) { o.OnError(failure) })
			}
			c.each(func(o Observer) { o.OnStateChange(StateDisconnected) })
			return
		}

		if c.currentGen() != gen {
			return
		}

		switch frame.Type {
		case "transcript":
			speaker := models.SpeakerUser
			if frame.Source == string(models.SpeakerAgent) {
				speaker = models.SpeakerAgent
			}
			c.each(func(o Observer) { o.OnTranscription(speaker, frame.Text) })
		case "message":
			c.each(func(o Observer) { o.OnMessage(frame.Content) })
		case "audio":
			pcm, err := base64.StdEncoding.DecodeString(frame.DataB64)
			if err != nil {
				c.log.WithError(err).Debug("dropping undecodable audio frame")
				continue
			}
			c.each(func(o Observer) { o.OnAudio(pcm) })
		case "error":
			remote := utils.E(utils.CodeChannelFailed, "Channel.Remote", frame.Message, nil)
			c.each(func(o Observer) { o.OnError(remote) })
		default:
			c.log.WithField("type", frame.Type).Debug("ignoring unknown frame")
		}
	}
}
