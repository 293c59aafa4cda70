package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// LiveHandler is a stub conversational agent speaking the live-channel wire
// protocol. It exists so the client can be exercised end to end locally: it
// acks inbound audio with canned user transcript fragments and answers text
// input with an assistant reply. It does no real speech recognition.
type LiveHandler struct {
	log      *logrus.Logger
	upgrader websocket.Upgrader

	// frames of audio per emitted canned fragment
	framesPerFragment int
}

func NewLiveHandler(log *logrus.Logger) *LiveHandler {
	if log == nil {
		log = logrus.New()
	}
	return &LiveHandler{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // local dev only
		},
		framesPerFragment: 25,
	}
}

type liveClientMsg struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
	Text    string `json:"text"`
}

type liveServerMsg struct {
	Type    string `json:"type"`
	Source  string `json:"source,omitempty"`
	Text    string `json:"text,omitempty"`
	Content string `json:"content,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type liveConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *liveConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteJSON(v)
}

var cannedFragments = []string{
	"I led the migration", "of our payments service", "to an event-driven design",
	"which cut", "p99 latency", "by roughly forty percent",
}

func (h *LiveHandler) Serve(c *gin.Context) {
	sessionID := c.Param("session_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote the response in most cases
		return
	}
	defer conn.Close()

	lc := &liveConn{c: conn}
	log := h.log.WithFields(logrus.Fields{"component": "live-stub", "session_id": sessionID})
	log.Info("live session connected")

	frames := 0
	fragment := 0

	for {
		_, data, rerr := conn.ReadMessage()
		if rerr != nil {
			log.WithError(rerr).Debug("live session closed")
			return
		}

		var msg liveClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = lc.writeJSON(liveServerMsg{Type: "error", Code: "INVALID_ARGUMENT", Message: "invalid json"})
			continue
		}

		switch msg.Type {
		case "audio_frame":
			frames++
			if frames%h.framesPerFragment == 0 {
				_ = lc.writeJSON(liveServerMsg{
					Type:   "transcript",
					Source: "user",
					Text:   cannedFragments[fragment%len(cannedFragments)],
				})
				fragment++
			}

		case "text_input":
			_ = lc.writeJSON(liveServerMsg{Type: "transcript", Source: "user", Text: msg.Text})
			_ = lc.writeJSON(liveServerMsg{
				Type:   "transcript",
				Source: "agent",
				Text:   "Interesting. Could you walk me through the hardest tradeoff you made there?",
			})
			_ = lc.writeJSON(liveServerMsg{
				Type:    "message",
				Content: "Interesting. Could you walk me through the hardest tradeoff you made there?",
			})

		case "end_session":
			log.Info("live session ended by client")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
			return

		default:
			_ = lc.writeJSON(liveServerMsg{Type: "error", Code: "INVALID_ARGUMENT", Message: "unknown message type"})
		}
	}
}
