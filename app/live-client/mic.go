package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/voxprep/voxprep/internal/media"
)

// micFactory opens the default capture device as s16le mono PCM and adapts
// it to the broker's stream contract.
func micFactory(sampleRateHz, frameMS int) media.SourceFactory {
	return func(ctx context.Context) (media.Stream, error) {
		mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("init audio context: %w", err)
		}

		cfg := malgo.DefaultDeviceConfig(malgo.Capture)
		cfg.Capture.Format = malgo.FormatS16
		cfg.Capture.Channels = 1
		cfg.SampleRate = uint32(sampleRateHz)
		cfg.PeriodSizeInMilliseconds = uint32(frameMS)

		frames := make(chan []byte, 64)
		callbacks := malgo.DeviceCallbacks{
			Data: func(_, input []byte, _ uint32) {
				buf := make([]byte, len(input))
				copy(buf, input)
				select {
				case frames <- buf:
				default:
					// consumer is behind; drop rather than grow a backlog
				}
			},
		}

		dev, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
		if err != nil {
			_ = mctx.Uninit()
			return nil, fmt.Errorf("%w: %v", media.ErrDeviceNotFound, err)
		}
		if err := dev.Start(); err != nil {
			dev.Uninit()
			_ = mctx.Uninit()
			return nil, fmt.Errorf("%w: %v", media.ErrPermissionDenied, err)
		}

		return &micStream{dev: dev, mctx: mctx, frames: frames}, nil
	}
}

type micStream struct {
	dev    *malgo.Device
	mctx   *malgo.AllocatedContext
	frames chan []byte
	once   sync.Once
}

func (m *micStream) Frames() <-chan []byte { return m.frames }

func (m *micStream) Close() error {
	m.once.Do(func() {
		m.dev.Uninit()
		_ = m.mctx.Uninit()
		close(m.frames)
	})
	return nil
}
