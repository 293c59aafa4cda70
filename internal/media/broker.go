// Package media owns the capture hardware: microphone, camera, and screen
// tracks. Streams are exclusively owned by the broker; renderers and the
// channel client hold non-owning references and never release hardware.
package media

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/voxprep/voxprep/internal/models"
	"github.com/voxprep/voxprep/internal/utils"
)

// Sentinel errors a SourceFactory returns so acquisition failures map onto
// the actionable device error taxonomy.
var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrDeviceNotFound   = errors.New("capture device not found")
)

// Stream is one live capture source. Frames is closed when the stream stops.
type Stream interface {
	Frames() <-chan []byte
	Close() error
}

// SourceFactory opens the hardware for one device kind.
type SourceFactory func(ctx context.Context) (Stream, error)

// Observer receives track lifecycle events for rendering and icon state.
type Observer interface {
	OnStream(kind models.DeviceKind, stream Stream)
	OnEnabledChange(kind models.DeviceKind, enabled bool)
	OnStopped(kind models.DeviceKind)
}

type track struct {
	stream  Stream
	enabled bool
}

type Broker struct {
	mu        sync.Mutex
	factories map[models.DeviceKind]SourceFactory
	tracks    map[models.DeviceKind]*track
	live      bool // realtime channel connected; freezes camera acquisition

	log *logrus.Entry

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int
}

func NewBroker(factories map[models.DeviceKind]SourceFactory, log *logrus.Logger) *Broker {
	if log == nil {
		log = logrus.New()
	}
	return &Broker{
		factories: factories,
		tracks:    make(map[models.DeviceKind]*track),
		log:       log.WithField("component", "media"),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer and returns its unsubscribe func.
func (b *Broker) Subscribe(o Observer) (unsubscribe func()) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	id := b.nextObsID
	b.nextObsID++
	b.observers[id] = o
	return func() {
		b.obsMu.Lock()
		defer b.obsMu.Unlock()
		delete(b.observers, id)
	}
}

func (b *Broker) each(fn func(o Observer)) {
	b.obsMu.Lock()
	snapshot := make([]Observer, 0, len(b.observers))
	for _, o := range b.observers {
		snapshot = append(snapshot, o)
	}
	b.obsMu.Unlock()
	for _, o := range snapshot {
		fn(o)
	}
}

// SetLive marks the realtime channel connected. While live the camera track
// cannot be newly acquired, only toggled if it was acquired pre-connect.
func (b *Broker) SetLive(live bool) {
	b.mu.Lock()
	b.live = live
	b.mu.Unlock()
}

// Start acquires the stream for kind. Camera and screen share the single
// active video slot, so starting one stops the other first.
func (b *Broker) Start(ctx context.Context, kind models.DeviceKind) error {
	const op = "Broker.Start"

	b.mu.Lock()
	if _, ok := b.tracks[kind]; ok {
		b.mu.Unlock()
		return nil // already streaming
	}
	if kind == models.DeviceCamera && b.live {
		b.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "camera cannot be acquired while the channel is connected", nil)
	}
	factory, ok := b.factories[kind]
	b.mu.Unlock()
	if !ok || factory == nil {
		return utils.E(utils.CodeDeviceNotFound, op, string(kind)+" capture is not available", nil)
	}

	if kind.Video() {
		b.stopOtherVideo(kind)
	}

	stream, err := factory(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrPermissionDenied):
			return utils.E(utils.CodePermissionDenied, op, string(kind)+" permission denied", err)
		case errors.Is(err, ErrDeviceNotFound):
			return utils.E(utils.CodeDeviceNotFound, op, string(kind)+" not found", err)
		default:
			return utils.E(utils.CodeInternal, op, "failed to open "+string(kind), err)
		}
	}

	b.mu.Lock()
	b.tracks[kind] = &track{stream: stream, enabled: true}
	b.mu.Unlock()

	b.log.WithField("kind", kind).Info("track acquired")
	b.each(func(o Observer) { o.OnStream(kind, stream) })
	return nil
}

func (b *Broker) stopOtherVideo(kind models.DeviceKind) {
	other := models.DeviceScreen
	if kind == models.DeviceScreen {
		other = models.DeviceCamera
	}
	b.Stop(other)
}

// Stop releases the hardware for kind and clears the track.
func (b *Broker) Stop(kind models.DeviceKind) {
	b.mu.Lock()
	t, ok := b.tracks[kind]
	delete(b.tracks, kind)
	b.mu.Unlock()
	if !ok {
		return
	}

	_ = t.stream.Close()
	b.log.WithField("kind", kind).Info("track released")
	b.each(func(o Observer) { o.OnStopped(kind) })
}

// StopAll releases every acquired track.
func (b *Broker) StopAll() {
	for _, kind := range []models.DeviceKind{models.DeviceMicrophone, models.DeviceCamera, models.DeviceScreen} {
		b.Stop(kind)
	}
}

// ToggleEnabled flips the soft enable bit on an already-acquired track
// without releasing hardware, so re-enabling is instant and prompts no new
// permission request.
func (b *Broker) ToggleEnabled(kind models.DeviceKind) (bool, error) {
	const op = "Broker.ToggleEnabled"

	b.mu.Lock()
	t, ok := b.tracks[kind]
	if !ok {
		b.mu.Unlock()
		return false, utils.E(utils.CodeDeviceNotFound, op, string(kind)+" track is not acquired", nil)
	}
	t.enabled = !t.enabled
	enabled := t.enabled
	b.mu.Unlock()

	b.each(func(o Observer) { o.OnEnabledChange(kind, enabled) })
	return enabled, nil
}

// Track reports the UI-facing state of one device kind.
func (b *Broker) Track(kind models.DeviceKind) models.TrackState {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tracks[kind]
	if !ok {
		return models.TrackState{Kind: kind}
	}
	return models.TrackState{Kind: kind, Enabled: t.enabled, Streaming: true}
}

// Stream returns the live stream for kind, or nil. The caller must not close
// it; the broker owns the hardware.
func (b *Broker) Stream(kind models.DeviceKind) Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tracks[kind]; ok {
		return t.stream
	}
	return nil
}
