package config

import (
	"os"
	"strconv"
	"time"
)

// Client holds the live-client settings read from the environment.
type Client struct {
	StoreBaseURL string        // session store, ex: http://localhost:8080
	ChannelURL   string        // realtime channel, ex: ws://localhost:8080/ws/live
	SampleRateHz int           // mic capture rate
	FrameDur     time.Duration // mic frame duration
}

func LoadClient() Client {
	return Client{
		StoreBaseURL: getenv("STORE_BASE_URL", "http://localhost:8080"),
		ChannelURL:   getenv("CHANNEL_URL", "ws://localhost:8080/ws/live"),
		SampleRateHz: getenvInt("MIC_SAMPLE_RATE_HZ", 16000),
		FrameDur:     time.Duration(getenvInt("MIC_FRAME_MS", 20)) * time.Millisecond,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
