package domain

// DeviceSettings is the persisted capture preference state. Read-mostly:
// written only by explicit user preference actions and re-read before every
// capture (re)acquisition.
type DeviceSettings struct {
	DeviceID          string `mapstructure:"device_id" json:"device_id"`
	EchoCancellation  bool   `mapstructure:"echo_cancellation" json:"echo_cancellation"`
	NoiseSuppression  bool   `mapstructure:"noise_suppression" json:"noise_suppression"`
	SpeakingThreshold int    `mapstructure:"speaking_threshold" json:"speaking_threshold"`
}

// DefaultDeviceSettings matches a fresh install: default device, both audio
// filters on, mid-scale speaking threshold.
func DefaultDeviceSettings() DeviceSettings {
	return DeviceSettings{
		DeviceID:          "default",
		EchoCancellation:  true,
		NoiseSuppression:  true,
		SpeakingThreshold: 25,
	}
}
