package config

import (
	"time"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/observability"
	"github.com/landingbeacon/landingbeacon-go/pkg/kvstore"
)

type Config struct {
	Project       ProjectConfig        `yaml:"project"`
	Identity      IdentityConfig       `yaml:"identity"`
	Storage       kvstore.Config       `yaml:"storage"`
	Tracking      TrackingConfig       `yaml:"tracking"`
	Log           LogConfig            `yaml:"log"`
	Observability observability.Config `yaml:"observability"`
	MockServer    MockServerConfig     `yaml:"mock_server"`
}

type ProjectConfig struct {
	ID     string `yaml:"id"`
	APIKey string `yaml:"api_key"`
	APIURL string `yaml:"api_url"`
}

type IdentityConfig struct {
	// TTL of the device id; 0 keeps it forever.
	TTL         time.Duration `yaml:"ttl"`
	Prefix      string        `yaml:"prefix"`
	AdoptLegacy bool          `yaml:"adopt_legacy"`
}

type TrackingConfig struct {
	ContextSignals bool          `yaml:"context_signals"`
	Timeout        time.Duration `yaml:"timeout"`
	// Referrer and UserAgent describe the page the CLI reports on behalf of.
	Referrer  string `yaml:"referrer"`
	UserAgent string `yaml:"user_agent"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type MockServerConfig struct {
	Addr         string   `yaml:"addr"`
	StaticDir    string   `yaml:"static_dir"`
	AllowOrigins []string `yaml:"allow_origins"`
	// Database is a sqlite DSN; empty keeps records in memory.
	Database string `yaml:"database"`
	// APIKeys maps project id to the accepted key. Empty accepts any key.
	APIKeys map[string]string `yaml:"api_keys"`
}
