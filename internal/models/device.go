package models

// DeviceKind names a capture device the broker can own.
type DeviceKind string

const (
	DeviceMicrophone DeviceKind = "microphone"
	DeviceCamera     DeviceKind = "camera"
	DeviceScreen     DeviceKind = "screen"
)

// Video reports whether the kind occupies the single active video slot.
func (k DeviceKind) Video() bool {
	return k == DeviceCamera || k == DeviceScreen
}

// TrackState is the broker-owned view of one device track exposed to the UI.
type TrackState struct {
	Kind      DeviceKind `json:"kind"`
	Enabled   bool       `json:"enabled"`   // soft mute bit, hardware stays open
	Streaming bool       `json:"streaming"` // hardware acquired and producing
}
