package config

import (
	"path/filepath"
	"time"
)

// Config holds runtime settings for the storekeeper CLI.
type Config struct {
	ServerEndpointAddr string
	// ChangeFeedURL is the ws:// base of the server's HTTP API.
	ChangeFeedURL string
	// ProbeURL, when set, is probed over HTTP instead of the gRPC health
	// service.
	ProbeURL string
	DataDir  string

	WorkspaceID string
	UserID      string
	LogLevel    string

	HeartbeatInterval   time.Duration
	WakeThreshold       time.Duration
	DebounceDelay       time.Duration
	ProbeTimeout        time.Duration
	FailureThreshold    int
	NetworkPollInterval time.Duration

	SyncBatchSize int
	MaxRetries    int
	AutoSyncDelay time.Duration

	SecretPassphrase string
}

// DefaultPassphrase keys the secret codec when none is configured.
const DefaultPassphrase = "storekeeper-local-secrets"

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.ChangeFeedURL = "ws://127.0.0.1:8080"
	c.ProbeURL = ""
	c.DataDir = ".storekeeper"
	c.WorkspaceID = ""
	c.UserID = ""
	c.LogLevel = "warn"
	c.HeartbeatInterval = 30 * time.Second
	c.WakeThreshold = 60 * time.Second
	c.DebounceDelay = 500 * time.Millisecond
	c.ProbeTimeout = 10 * time.Second
	c.FailureThreshold = 2
	c.NetworkPollInterval = 3 * time.Second
	c.SyncBatchSize = 50
	c.MaxRetries = 10
	c.AutoSyncDelay = 3 * time.Second
	c.SecretPassphrase = DefaultPassphrase
}

// DatabasePath is the local store file inside DataDir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name)
}

// LoadConfig constructs a Config, applies defaults, then overlays the config
// file named in args and the environment. Flags are applied later by the
// command that owns them, see BindFlags. Invalid values panic.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg, args)
	parseEnv(cfg, ".env")
	return cfg
}
