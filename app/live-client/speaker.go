package main

import (
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// speaker plays agent PCM as it arrives from the channel.
type speaker struct {
	pw     *io.PipeWriter
	player *oto.Player
	once   sync.Once
}

func newSpeaker(sampleRateHz int) (*speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRateHz,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.Play()
	return &speaker{pw: pw, player: player}, nil
}

// Play queues one PCM frame for playback.
func (s *speaker) Play(pcm []byte) {
	_, _ = s.pw.Write(pcm)
}

func (s *speaker) Close() {
	s.once.Do(func() {
		_ = s.pw.Close()
		_ = s.player.Close()
	})
}
