// Package session composes the media broker, realtime channel, transcript
// consolidator, chat log, and analysis retriever across the life of one room
// visit. The controller owns the critical contract of the whole engine:
// transcript persistence happens exactly once per session, on every exit
// path.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voxprep/voxprep/internal/analysis"
	"github.com/voxprep/voxprep/internal/channel"
	"github.com/voxprep/voxprep/internal/chat"
	"github.com/voxprep/voxprep/internal/media"
	"github.com/voxprep/voxprep/internal/models"
	"github.com/voxprep/voxprep/internal/transcript"
	"github.com/voxprep/voxprep/internal/utils"
)

type State string

const (
	StateIdle         State = "idle"
	StateMounted      State = "mounted"
	StatePromptReady  State = "prompt_ready"
	StateDevicesArmed State = "devices_armed"
	StateConnected    State = "connected"
	StateEnding       State = "ending"
	StateUnmounted    State = "unmounted"
)

// Deps are the collaborators the controller drives. The consolidator is
// created per mount so no transcription state outlives a room visit.
type Deps struct {
	Broker    *media.Broker
	Channel   *channel.Client
	Chat      *chat.Log
	Retriever *analysis.Retriever
	Store     transcript.Store
	AudioSink func(pcm []byte) // optional agent audio playback
	Logger    *logrus.Logger
}

type Controller struct {
	roomID string

	broker    *media.Broker
	channel   *channel.Client
	chat      *chat.Log
	retriever *analysis.Retriever
	store     transcript.Store
	audioSink func(pcm []byte)
	log       *logrus.Entry

	mu           sync.Mutex
	state        State
	consolidator *transcript.Consolidator
	prompt       *models.AnalysisPrompt
	promptErr    error
	lastNotice   error
	pollCancel   context.CancelFunc
	unsubs       []func()
}

func NewController(roomID string, d Deps) *Controller {
	log := d.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Controller{
		roomID:    roomID,
		broker:    d.Broker,
		channel:   d.Channel,
		chat:      d.Chat,
		retriever: d.Retriever,
		store:     d.Store,
		audioSink: d.AudioSink,
		log:       log.WithFields(logrus.Fields{"component": "session", "session_id": roomID}),
		state:     StateIdle,
	}
}

// Mount prepares the room: clears any chat left from a previous room, creates
// a fresh consolidator for this session, wires channel and broker events, and
// begins prompt polling. Poll results are dropped once the room unmounts.
func (c *Controller) Mount(ctx context.Context) error {
	const op = "Controller.Mount"

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "room already mounted", nil)
	}
	c.state = StateMounted
	c.chat.Clear()
	c.consolidator = transcript.NewConsolidator(c.roomID, time.Now().UTC(), c.store, c.log.Logger)

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.pollCancel = cancel

	c.unsubs = append(c.unsubs,
		c.channel.Subscribe(channelEvents{c}),
		c.broker.Subscribe(brokerEvents{c}),
	)
	c.mu.Unlock()

	go c.pollPrompt(pollCtx)
	return nil
}

func (c *Controller) pollPrompt(ctx context.Context) {
	prompt, err := c.retriever.FetchPrompt(ctx, c.roomID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateUnmounted {
		return // stale result; the room is gone
	}
	c.prompt = prompt
	c.promptErr = err
	if err == nil && c.state == StateMounted {
		c.state = StatePromptReady
	}
	if err != nil {
		c.log.WithError(err).Warn("prompt retrieval failed")
	}
}

// Prompt reports the analysis prompt fetch outcome. loading is true until
// the bounded polling finishes one way or the other.
func (c *Controller) Prompt() (prompt *models.AnalysisPrompt, err error, loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt, c.promptErr, c.prompt == nil && c.promptErr == nil
}

// Start arms the microphone and connects the realtime channel.
func (c *Controller) Start(ctx context.Context) error {
	const op = "Controller.Start"

	c.mu.Lock()
	switch c.state {
	case StateMounted, StatePromptReady, StateDevicesArmed:
	default:
		c.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "session cannot start from state "+string(c.state), nil)
	}
	c.mu.Unlock()

	if err := c.broker.Start(ctx, models.DeviceMicrophone); err != nil {
		c.notice(err)
		return err
	}

	c.mu.Lock()
	c.state = StateDevicesArmed
	c.mu.Unlock()

	if err := c.channel.Connect(ctx); err != nil {
		// devices stay armed; the user retries connecting explicitly
		c.notice(err)
		return err
	}

	c.broker.SetLive(true)
	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()

	go c.pumpMicrophone()
	return nil
}

// pumpMicrophone forwards captured PCM frames to the channel until the mic
// stream closes. Frames sent while the channel is down are dropped by the
// client; there is no buffering.
func (c *Controller) pumpMicrophone() {
	stream := c.broker.Stream(models.DeviceMicrophone)
	if stream == nil {
		return
	}
	for frame := range stream.Frames() {
		if err := c.channel.SendAudio(frame); err != nil && !utils.IsCode(err, utils.CodeChannelFailed) {
			c.log.WithError(err).Debug("dropping mic frame")
		}
	}
}

// SendText forwards a typed user message to the engine. The engine echoes it
// back as a user transcription, which is how it reaches the chat log.
func (c *Controller) SendText(text string) error {
	return c.channel.SendText(text)
}

// ToggleDevice flips the soft enable bit on an acquired track. Toggling the
// microphone also mutes the channel so frames are dropped, not buffered.
func (c *Controller) ToggleDevice(kind models.DeviceKind) (bool, error) {
	return c.broker.ToggleEnabled(kind)
}

// StartVideo acquires the camera or screen track mid-session where allowed.
func (c *Controller) StartVideo(ctx context.Context, kind models.DeviceKind) error {
	const op = "Controller.StartVideo"
	if !kind.Video() {
		return utils.E(utils.CodeInvalidArgument, op, "not a video device", nil)
	}
	if err := c.broker.Start(ctx, kind); err != nil {
		c.notice(err)
		return err
	}
	return nil
}

// EndAndSave is the explicit "end and save" action: stop devices, disconnect
// the channel, and persist the transcript.
func (c *Controller) EndAndSave(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateEnding || c.state == StateUnmounted {
		c.mu.Unlock()
		return
	}
	c.state = StateEnding
	cons := c.consolidator
	c.mu.Unlock()

	_ = c.channel.EndSession()
	c.teardownMedia()
	if cons != nil {
		cons.EndSession(ctx)
	}
}

// EndWithoutSaving is the deliberate data-loss path: everything is released
// and the pending transcript is discarded, never persisted.
func (c *Controller) EndWithoutSaving() {
	c.mu.Lock()
	if c.state == StateEnding || c.state == StateUnmounted {
		c.mu.Unlock()
		return
	}
	c.state = StateEnding
	cons := c.consolidator
	c.mu.Unlock()

	c.teardownMedia()
	if cons != nil {
		cons.Discard()
	}
}

// Unmount releases everything when the room goes away: navigation, route
// change, or teardown racing an explicit end. The consolidator's own guard
// makes the fallback EndSession a no-op when an explicit end already ran.
func (c *Controller) Unmount(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateUnmounted {
		c.mu.Unlock()
		return
	}
	c.state = StateUnmounted
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	unsubs := c.unsubs
	c.unsubs = nil
	cons := c.consolidator
	c.mu.Unlock()

	c.teardownMedia()
	if cons != nil {
		cons.EndSession(ctx)
	}
	for _, unsub := range unsubs {
		unsub()
	}
	c.chat.Clear()
}

func (c *Controller) teardownMedia() {
	c.broker.SetLive(false)
	c.broker.StopAll()
	c.channel.Disconnect()
}

// Connected gates the start/end controls in the UI.
func (c *Controller) Connected() bool {
	return c.channel.State() == channel.StateConnected
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages exposes the ordered chat log for rendering.
func (c *Controller) Messages() []models.ChatMessage {
	return c.chat.Messages()
}

// Lines exposes the finalized transcript so far.
func (c *Controller) Lines() []models.TranscriptEntry {
	c.mu.Lock()
	cons := c.consolidator
	c.mu.Unlock()
	if cons == nil {
		return nil
	}
	return cons.Lines()
}

// Notice returns the last device/channel error translated for the UI.
func (c *Controller) Notice() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastNotice
}

func (c *Controller) notice(err error) {
	c.mu.Lock()
	c.lastNotice = err
	c.mu.Unlock()
}

// channelEvents adapts channel callbacks onto the controller.
type channelEvents struct{ c *Controller }

func (e channelEvents) OnTranscription(speaker models.Speaker, text string) {
	c := e.c
	c.mu.Lock()
	cons := c.consolidator
	c.mu.Unlock()
	if cons != nil {
		cons.AddFragment(speaker, text)
	}
	// agent text reaches the chat through message events; posting its
	// transcription too would duplicate every reply
	if speaker == models.SpeakerUser {
		c.chat.Add(string(speaker), text)
	}
}

func (e channelEvents) OnMessage(content string) {
	e.c.chat.Add(string(models.SpeakerAgent), content)
}

func (e channelEvents) OnAudio(pcm []byte) {
	if e.c.audioSink != nil {
		e.c.audioSink(pcm)
	}
}

func (e channelEvents) OnError(err error) {
	e.c.log.WithError(err).Warn("channel error")
	e.c.notice(err)
}

func (e channelEvents) OnStateChange(state channel.State) {
	c := e.c
	if state != channel.StateDisconnected {
		return
	}
	c.broker.SetLive(false)
	c.mu.Lock()
	if c.state == StateConnected {
		// channel dropped mid-session; no automatic reconnection
		c.state = StateDevicesArmed
	}
	c.mu.Unlock()
}

// brokerEvents adapts device callbacks onto the controller.
type brokerEvents struct{ c *Controller }

func (e brokerEvents) OnStream(kind models.DeviceKind, _ media.Stream) {
	e.c.log.WithField("kind", kind).Debug("device stream ready")
}

func (e brokerEvents) OnEnabledChange(kind models.DeviceKind, enabled bool) {
	if kind == models.DeviceMicrophone {
		e.c.channel.SetMuted(!enabled)
	}
}

func (e brokerEvents) OnStopped(kind models.DeviceKind) {
	e.c.log.WithField("kind", kind).Debug("device stream stopped")
}
