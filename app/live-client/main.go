package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/voxprep/voxprep/config"
	"github.com/voxprep/voxprep/internal/analysis"
	"github.com/voxprep/voxprep/internal/channel"
	"github.com/voxprep/voxprep/internal/chat"
	"github.com/voxprep/voxprep/internal/logger"
	"github.com/voxprep/voxprep/internal/media"
	"github.com/voxprep/voxprep/internal/models"
	"github.com/voxprep/voxprep/internal/session"
	"github.com/voxprep/voxprep/internal/storeclient"
	"github.com/voxprep/voxprep/internal/utils"
)

const agentOutSampleRateHz = 24000

func main() {
	_ = godotenv.Load()

	cfg := config.LoadClient()
	l := logger.New()

	sessionID := uuid.NewString()
	if len(os.Args) > 1 && os.Args[1] != "" {
		sessionID = os.Args[1]
	}

	store := storeclient.New(cfg.StoreBaseURL)

	spk, err := newSpeaker(agentOutSampleRateHz)
	if err != nil {
		l.WithError(err).Warn("speaker unavailable, agent audio will be discarded")
	}

	broker := media.NewBroker(map[models.DeviceKind]media.SourceFactory{
		models.DeviceMicrophone: micFactory(cfg.SampleRateHz, int(cfg.FrameDur.Milliseconds())),
	}, l)

	ctrl := session.NewController(sessionID, session.Deps{
		Broker:    broker,
		Channel:   channel.NewClient(cfg.ChannelURL+"/"+sessionID, l),
		Chat:      chat.NewLog(),
		Retriever: &analysis.Retriever{Source: store, Logger: l},
		Store:     store,
		AudioSink: func(pcm []byte) {
			if spk != nil {
				spk.Play(pcm)
			}
		},
		Logger: l,
	})

	ctx := context.Background()
	if err := ctrl.Mount(ctx); err != nil {
		l.WithError(err).Fatal("failed to mount session")
	}

	fmt.Println("session:", sessionID)
	fmt.Println("commands: start | mic | say <text> | end (save) | quit (discard)")

	// unmount fallback on Ctrl-C: devices released, channel closed, transcript
	// persisted exactly once even without an explicit end
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		ctrl.Unmount(context.Background())
		if spk != nil {
			spk.Close()
		}
		os.Exit(0)
	}()

	go printPrompt(ctrl)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if text, ok := strings.CutPrefix(line, "say "); ok {
			if err := ctrl.SendText(strings.TrimSpace(text)); err != nil {
				fmt.Println("send failed:", err)
			}
			continue
		}
		switch line {
		case "start":
			if err := ctrl.Start(ctx); err != nil {
				fmt.Println("start failed:", err)
				continue
			}
			fmt.Println("connected; speak now")

		case "mic":
			enabled, err := ctrl.ToggleDevice(models.DeviceMicrophone)
			if err != nil {
				fmt.Println("toggle failed:", err)
				continue
			}
			fmt.Println("mic enabled:", enabled)

		case "end":
			ctrl.EndAndSave(ctx)
			printChat(ctrl)
			ctrl.Unmount(ctx)
			if spk != nil {
				spk.Close()
			}
			return

		case "quit":
			ctrl.EndWithoutSaving()
			ctrl.Unmount(ctx)
			if spk != nil {
				spk.Close()
			}
			return

		case "":
		default:
			fmt.Println("unknown command")
		}
	}

	// stdin closed without an explicit end: rely on the fallback teardown
	ctrl.Unmount(ctx)
	if spk != nil {
		spk.Close()
	}
}

func printPrompt(ctrl *session.Controller) {
	// the retriever bounds its own polling; just wait for the outcome
	for {
		prompt, err, loading := ctrl.Prompt()
		if loading {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		switch {
		case err == nil:
			fmt.Println("\ninterview prompt:\n" + prompt.Payload)
		case utils.IsCode(err, utils.CodeNotFound):
			fmt.Println("\nyour interview prompt is still being prepared; reload the room in a minute")
		default:
			fmt.Println("\ncould not load the interview prompt:", err)
		}
		return
	}
}

func printChat(ctrl *session.Controller) {
	for _, m := range ctrl.Messages() {
		fmt.Printf("%s: %s\n", m.Author, m.Content)
	}
}
