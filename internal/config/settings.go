package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"

	"github.com/dkeye/huddle/internal/domain"
)

// SettingsStore persists DeviceSettings across sessions: loaded once at
// startup, written back on every change. There are no concurrent writers by
// construction (only user preference actions mutate it), the mutex just keeps
// reads consistent against a save in flight.
type SettingsStore struct {
	mu   sync.RWMutex
	path string
	v    *viper.Viper
	cur  domain.DeviceSettings
}

func OpenSettings(path string) (*SettingsStore, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)

	def := domain.DefaultDeviceSettings()
	v.SetDefault("device_id", def.DeviceID)
	v.SetDefault("echo_cancellation", def.EchoCancellation)
	v.SetDefault("noise_suppression", def.NoiseSuppression)
	v.SetDefault("speaking_threshold", def.SpeakingThreshold)

	// Missing file is fine: first save creates it.
	_ = v.ReadInConfig()

	var cur domain.DeviceSettings
	if err := v.Unmarshal(&cur); err != nil {
		return nil, fmt.Errorf("failed to parse device settings: %w", err)
	}
	if cur.SpeakingThreshold < 0 || cur.SpeakingThreshold > 100 {
		cur.SpeakingThreshold = def.SpeakingThreshold
	}
	return &SettingsStore{path: path, v: v, cur: cur}, nil
}

// Get returns the current settings snapshot.
func (s *SettingsStore) Get() domain.DeviceSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Put validates, persists and applies new settings.
func (s *SettingsStore) Put(set domain.DeviceSettings) error {
	if set.SpeakingThreshold < 0 || set.SpeakingThreshold > 100 {
		return fmt.Errorf("speaking threshold %d out of range", set.SpeakingThreshold)
	}
	if set.DeviceID == "" {
		return fmt.Errorf("empty device id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set("device_id", set.DeviceID)
	s.v.Set("echo_cancellation", set.EchoCancellation)
	s.v.Set("noise_suppression", set.NoiseSuppression)
	s.v.Set("speaking_threshold", set.SpeakingThreshold)
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to save device settings: %w", err)
	}
	s.cur = set
	return nil
}
