package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode      string `mapstructure:"mode"`
	Port      int    `mapstructure:"port"`
	SignalURL string `mapstructure:"signal_url"`
	Username  string `mapstructure:"username"`
	Avatar    string `mapstructure:"avatar"`

	StunServers       []string      `mapstructure:"stun_servers"`
	JoinTimeout       time.Duration `mapstructure:"join_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	// CapturePath is where the capture driver reads raw PCM from.
	CapturePath  string `mapstructure:"capture_path"`
	SettingsPath string `mapstructure:"settings_path"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8090)
	v.SetDefault("signal_url", "ws://localhost:8080/ws")
	v.SetDefault("username", "guest")
	v.SetDefault("stun_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
	v.SetDefault("join_timeout", "15s")
	v.SetDefault("heartbeat_interval", "30s")
	v.SetDefault("capture_path", "/tmp/huddle-capture.pcm")
	v.SetDefault("settings_path", "config/devices.yaml")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
