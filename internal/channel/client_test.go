package channel

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxprep/voxprep/internal/models"
	"github.com/voxprep/voxprep/internal/utils"
)

func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) (string, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
	return "ws" + strings.TrimPrefix(srv.URL, "http"), srv.Close
}

type recorder struct {
	mu          sync.Mutex
	transcripts []string
	speakers    []models.Speaker
	messages    []string
	errs        []error
	states      []State
}

func (r *recorder) OnTranscription(speaker models.Speaker, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speakers = append(r.speakers, speaker)
	r.transcripts = append(r.transcripts, text)
}

func (r *recorder) OnMessage(content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, content)
}

func (r *recorder) OnAudio([]byte) {}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) OnStateChange(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) snapshot() ([]string, []string, []error, []State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transcripts...),
		append([]string(nil), r.messages...),
		append([]error(nil), r.errs...),
		append([]State(nil), r.states...)
}

func TestConnect_DeliversTranscriptionAndMessageEvents(t *testing.T) {
	url, closeSrv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"type": "transcript", "source": "user", "text": "hello"})
		_ = conn.WriteJSON(map[string]any{"type": "transcript", "source": "agent", "text": "hi there"})
		_ = conn.WriteJSON(map[string]any{"type": "message", "content": "hi there"})
		time.Sleep(100 * time.Millisecond)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})
	defer closeSrv()

	c := NewClient(url, nil)
	rec := &recorder{}
	unsub := c.Subscribe(rec)
	defer unsub()

	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, StateConnected, c.State())

	require.Eventually(t, func() bool {
		transcripts, messages, _, _ := rec.snapshot()
		return len(transcripts) == 2 && len(messages) == 1
	}, 3*time.Second, 10*time.Millisecond)

	transcripts, messages, errs, states := rec.snapshot()
	assert.Equal(t, []string{"hello", "hi there"}, transcripts)
	assert.Equal(t, models.SpeakerUser, rec.speakers[0])
	assert.Equal(t, models.SpeakerAgent, rec.speakers[1])
	assert.Equal(t, []string{"hi there"}, messages)
	assert.Empty(t, errs, "a normal close is not an error")
	assert.Contains(t, states, StateConnecting)
	assert.Contains(t, states, StateConnected)

	c.Disconnect()
}

func TestSendAudio_RequiresConnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/never", nil)
	err := c.SendAudio([]byte("pcm"))
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeChannelFailed))
}

func TestSendAudio_MutedFramesAreDroppedNotBuffered(t *testing.T) {
	frames := make(chan string, 8)
	url, closeSrv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["type"] == "audio_frame" {
				frames <- msg["data_b64"].(string)
			}
		}
	})
	defer closeSrv()

	c := NewClient(url, nil)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	c.SetMuted(true)
	require.NoError(t, c.SendAudio([]byte("muted frame")))

	c.SetMuted(false)
	require.NoError(t, c.SendAudio([]byte("live frame")))

	// only the unmuted frame arrives; nothing was queued during the mute
	select {
	case got := <-frames:
		assert.Equal(t, "bGl2ZSBmcmFtZQ==", got) // base64("live frame")
	case <-time.After(3 * time.Second):
		t.Fatal("expected the unmuted frame to arrive")
	}
	select {
	case got := <-frames:
		t.Fatalf("unexpected extra frame %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDisconnect_SupersedesInFlightConnect(t *testing.T) {
	// a listener that accepts and stalls keeps the dial in flight
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, aerr := ln.Accept()
		if aerr == nil {
			defer conn.Close()
			time.Sleep(5 * time.Second)
		}
	}()

	c := NewClient("ws://"+ln.Addr().String(), nil)

	result := make(chan error, 1)
	go func() { result <- c.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return c.State() == StateConnecting }, time.Second, time.Millisecond)
	c.Disconnect()

	select {
	case err := <-result:
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.CodeCancelled), "superseded connect must report CANCELLED, got %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("superseded connect never returned")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestUnexpectedClose_SurfacesChannelError(t *testing.T) {
	url, closeSrv := newWSServer(t, func(conn *websocket.Conn) {
		conn.Close() // abrupt, no close handshake
	})
	defer closeSrv()

	c := NewClient(url, nil)
	rec := &recorder{}
	unsub := c.Subscribe(rec)
	defer unsub()

	require.NoError(t, c.Connect(context.Background()))

	require.Eventually(t, func() bool {
		_, _, errs, _ := rec.snapshot()
		return len(errs) == 1
	}, 3*time.Second, 10*time.Millisecond)

	_, _, errs, states := rec.snapshot()
	assert.True(t, utils.IsCode(errs[0], utils.CodeChannelFailed))
	assert.Equal(t, StateDisconnected, states[len(states)-1])
	// no automatic reconnection
	assert.Equal(t, StateDisconnected, c.State())
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	url, closeSrv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		time.Sleep(50 * time.Millisecond)
		_ = conn.WriteJSON(map[string]any{"type": "message", "content": "late"})
		time.Sleep(100 * time.Millisecond)
	})
	defer closeSrv()

	c := NewClient(url, nil)
	rec := &recorder{}
	unsub := c.Subscribe(rec)

	require.NoError(t, c.Connect(context.Background()))
	unsub()

	time.Sleep(300 * time.Millisecond)
	_, messages, _, _ := rec.snapshot()
	assert.Empty(t, messages)
	c.Disconnect()
}
