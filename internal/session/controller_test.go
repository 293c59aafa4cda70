package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxprep/voxprep/internal/analysis"
	"github.com/voxprep/voxprep/internal/channel"
	"github.com/voxprep/voxprep/internal/chat"
	"github.com/voxprep/voxprep/internal/media"
	"github.com/voxprep/voxprep/internal/models"
	"github.com/voxprep/voxprep/internal/utils"
)

type fakeStore struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (f *fakeStore) SaveTranscript(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.text = text
	return nil
}

func (f *fakeStore) saved() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.text
}

type fakePromptSource struct {
	mu       sync.Mutex
	notReady int
}

func (f *fakePromptSource) FetchPrompt(_ context.Context, sessionID string) (*models.AnalysisPrompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notReady > 0 {
		f.notReady--
		return nil, utils.E(utils.CodeNotReady, "test", "not ready", nil)
	}
	return &models.AnalysisPrompt{SessionID: sessionID, Payload: "ask about the migration"}, nil
}

type fakeStream struct {
	frames chan []byte
	once   sync.Once
}

func (f *fakeStream) Frames() <-chan []byte { return f.frames }
func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.frames) })
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	calls   int
	current *fakeStream
}

func (f *fakeFactory) factory(context.Context) (media.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.current = &fakeStream{frames: make(chan []byte, 16)}
	return f.current, nil
}

// agentScript drives the stub engine side of the websocket.
type agentScript struct {
	mu          sync.Mutex
	audioFrames int
	onConnect   []map[string]any
}

func (s *agentScript) audioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioFrames
}

func newAgentServer(t *testing.T, script *agentScript) (string, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range script.onConnect {
			_ = conn.WriteJSON(frame)
		}
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["type"] == "audio_frame" {
				script.mu.Lock()
				script.audioFrames++
				script.mu.Unlock()
			}
		}
	}))
	return "ws" + strings.TrimPrefix(srv.URL, "http"), srv.Close
}

type harness struct {
	ctrl   *Controller
	store  *fakeStore
	mic    *fakeFactory
	camera *fakeFactory
	close  func()
}

func newHarness(t *testing.T, script *agentScript, source analysis.PromptSource) *harness {
	t.Helper()
	url, closeSrv := newAgentServer(t, script)

	store := &fakeStore{}
	mic := &fakeFactory{}
	camera := &fakeFactory{}

	broker := media.NewBroker(map[models.DeviceKind]media.SourceFactory{
		models.DeviceMicrophone: mic.factory,
		models.DeviceCamera:     camera.factory,
	}, nil)

	if source == nil {
		source = &fakePromptSource{}
	}

	ctrl := NewController("room-1", Deps{
		Broker:    broker,
		Channel:   channel.NewClient(url, nil),
		Chat:      chat.NewLog(),
		Retriever: &analysis.Retriever{Source: source, Delay: time.Millisecond},
		Store:     store,
	})

	return &harness{ctrl: ctrl, store: store, mic: mic, camera: camera, close: closeSrv}
}

func TestEndAndSave_PersistsConsolidatedTranscriptOnce(t *testing.T) {
	script := &agentScript{onConnect: []map[string]any{
		{"type": "transcript", "source": "user", "text": "I led"},
		{"type": "transcript", "source": "user", "text": "the payments migration"},
		{"type": "transcript", "source": "agent", "text": "tell me more about that"},
		{"type": "message", "content": "tell me more about that"},
	}}
	h := newHarness(t, script, nil)
	defer h.close()

	ctx := context.Background()
	require.NoError(t, h.ctrl.Mount(ctx))
	require.NoError(t, h.ctrl.Start(ctx))
	require.True(t, h.ctrl.Connected())

	require.Eventually(t, func() bool {
		return len(h.ctrl.Messages()) == 2
	}, 3*time.Second, 10*time.Millisecond)

	msgs := h.ctrl.Messages()
	assert.Equal(t, "user", msgs[0].Author)
	assert.Equal(t, "I led the payments migration", msgs[0].Content)
	assert.Equal(t, "agent", msgs[1].Author)

	h.ctrl.EndAndSave(ctx)

	calls, text := h.store.saved()
	require.Equal(t, 1, calls)
	assert.Contains(t, text, "USER:\nI led the payments migration\n")
	assert.Contains(t, text, "ASSISTANT:\ntell me more about that\n")
	assert.Less(t, strings.Index(text, "USER:"), strings.Index(text, "ASSISTANT:"))

	// leaving the room must not double-persist, and resets the aggregator
	h.ctrl.Unmount(ctx)
	calls, _ = h.store.saved()
	assert.Equal(t, 1, calls)
	assert.Empty(t, h.ctrl.Messages())
	assert.False(t, h.ctrl.Connected())
	assert.Equal(t, StateUnmounted, h.ctrl.State())
}

func TestUnmount_FallbackPersistsExactlyOnce(t *testing.T) {
	script := &agentScript{onConnect: []map[string]any{
		{"type": "transcript", "source": "user", "text": "save this on the way out"},
	}}
	h := newHarness(t, script, nil)
	defer h.close()

	ctx := context.Background()
	require.NoError(t, h.ctrl.Mount(ctx))
	require.NoError(t, h.ctrl.Start(ctx))

	require.Eventually(t, func() bool {
		return len(h.ctrl.Messages()) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// navigate away without an explicit end
	h.ctrl.Unmount(ctx)
	h.ctrl.Unmount(ctx)

	calls, text := h.store.saved()
	assert.Equal(t, 1, calls)
	assert.Contains(t, text, "save this on the way out")
}

func TestEndWithoutSaving_DiscardsTranscript(t *testing.T) {
	script := &agentScript{onConnect: []map[string]any{
		{"type": "transcript", "source": "user", "text": "never persist this"},
	}}
	h := newHarness(t, script, nil)
	defer h.close()

	ctx := context.Background()
	require.NoError(t, h.ctrl.Mount(ctx))
	require.NoError(t, h.ctrl.Start(ctx))

	require.Eventually(t, func() bool {
		return len(h.ctrl.Messages()) == 1
	}, 3*time.Second, 10*time.Millisecond)

	h.ctrl.EndWithoutSaving()
	h.ctrl.Unmount(ctx)

	calls, _ := h.store.saved()
	assert.Equal(t, 0, calls, "the discard path must never persist, even via the fallback")
}

func TestMount_PromptPollingReachesReady(t *testing.T) {
	h := newHarness(t, &agentScript{}, &fakePromptSource{notReady: 2})
	defer h.close()

	ctx := context.Background()
	require.NoError(t, h.ctrl.Mount(ctx))

	require.Eventually(t, func() bool {
		prompt, err, loading := h.ctrl.Prompt()
		return !loading && err == nil && prompt != nil
	}, 3*time.Second, 5*time.Millisecond)

	prompt, _, _ := h.ctrl.Prompt()
	assert.Equal(t, "ask about the migration", prompt.Payload)
	assert.Equal(t, StatePromptReady, h.ctrl.State())
	h.ctrl.Unmount(ctx)
}

func TestCameraToggleMidSession_NoReacquisition(t *testing.T) {
	h := newHarness(t, &agentScript{}, nil)
	defer h.close()

	ctx := context.Background()
	require.NoError(t, h.ctrl.Mount(ctx))
	require.NoError(t, h.ctrl.StartVideo(ctx, models.DeviceCamera))
	require.NoError(t, h.ctrl.Start(ctx))

	enabled, err := h.ctrl.ToggleDevice(models.DeviceCamera)
	require.NoError(t, err)
	assert.False(t, enabled)

	enabled, err = h.ctrl.ToggleDevice(models.DeviceCamera)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, 1, h.camera.calls, "toggling must never reopen the camera")

	// a fresh camera acquisition is frozen while connected
	h.ctrl.EndWithoutSaving()
	h.ctrl.Unmount(ctx)
}

func TestMicToggle_MutesChannelWithoutBacklog(t *testing.T) {
	script := &agentScript{}
	h := newHarness(t, script, nil)
	defer h.close()

	ctx := context.Background()
	require.NoError(t, h.ctrl.Mount(ctx))
	require.NoError(t, h.ctrl.Start(ctx))

	h.mic.current.frames <- []byte("frame one")
	require.Eventually(t, func() bool { return script.audioCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	_, err := h.ctrl.ToggleDevice(models.DeviceMicrophone)
	require.NoError(t, err)

	h.mic.current.frames <- []byte("dropped while muted")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, script.audioCount())

	_, err = h.ctrl.ToggleDevice(models.DeviceMicrophone)
	require.NoError(t, err)

	h.mic.current.frames <- []byte("frame two")
	require.Eventually(t, func() bool { return script.audioCount() == 2 }, 3*time.Second, 10*time.Millisecond)

	h.ctrl.EndWithoutSaving()
	h.ctrl.Unmount(ctx)
}

func TestStart_RequiresMountedState(t *testing.T) {
	h := newHarness(t, &agentScript{}, nil)
	defer h.close()

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
}
