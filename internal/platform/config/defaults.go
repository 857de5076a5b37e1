package config

import (
	"time"

	"github.com/landingbeacon/landingbeacon-go/pkg/kvstore"
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			APIURL: "https://api.landingbeacon.io",
		},
		Identity: IdentityConfig{
			TTL: 30 * time.Minute,
		},
		Storage: kvstore.Config{
			Driver: kvstore.DriverFile,
			File:   &kvstore.FileConfig{Path: "data/landingbeacon.json"},
		},
		Tracking: TrackingConfig{
			ContextSignals: true,
			Timeout:        10 * time.Second,
			UserAgent:      "landingbeacon-cli",
		},
		Log: LogConfig{
			Level: "WARN",
			Dir:   "",
			File:  "",
		},
		MockServer: MockServerConfig{
			Addr: "127.0.0.1:8787",
		},
	}
}
