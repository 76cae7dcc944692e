package caster

// Device describes one discovered cast device.
type Device struct {
	UUID           string `json:"uuid"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name"`
	Model          string `json:"model_name"`
	Addr           string `json:"host"`
	Port           int    `json:"port"`
}

// Status is a snapshot of a device's playback state. Found is false when
// the device is unknown or unreachable; the rest of the fields are only
// meaningful when it is true.
type Status struct {
	Found       bool    `json:"found"`
	Idle        bool    `json:"is_idle"`
	PlayerState string  `json:"player_state"`
	AppName     string  `json:"app_display_name,omitempty"`
	Title       string  `json:"title,omitempty"`
	VolumeLevel float32 `json:"volume_level"`
	VolumeMuted bool    `json:"volume_muted"`
}

// PlayerStateUnknown is reported when a device has no media session.
const PlayerStateUnknown = "UNKNOWN"

// PlayerStateIdle is the cast player state for a loaded but idle session.
const PlayerStateIdle = "IDLE"
