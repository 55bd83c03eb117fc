package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment variable the client reads.
const EnvPrefix = "STOREKEEPER_"

type envVar struct {
	name string
	set  func(c *Config, v string) error
}

func stringVar(f func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*f(c) = v
		return nil
	}
}

func durationVar(f func(c *Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*f(c) = d
		return nil
	}
}

func intVar(f func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*f(c) = n
		return nil
	}
}

var envVars = []envVar{
	{"SERVER_ADDR", stringVar(func(c *Config) *string { return &c.ServerEndpointAddr })},
	{"CHANGEFEED_URL", stringVar(func(c *Config) *string { return &c.ChangeFeedURL })},
	{"PROBE_URL", stringVar(func(c *Config) *string { return &c.ProbeURL })},
	{"DATA_DIR", stringVar(func(c *Config) *string { return &c.DataDir })},
	{"WORKSPACE", stringVar(func(c *Config) *string { return &c.WorkspaceID })},
	{"USER", stringVar(func(c *Config) *string { return &c.UserID })},
	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.LogLevel })},
	{"HEARTBEAT_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.HeartbeatInterval })},
	{"WAKE_THRESHOLD", durationVar(func(c *Config) *time.Duration { return &c.WakeThreshold })},
	{"DEBOUNCE_DELAY", durationVar(func(c *Config) *time.Duration { return &c.DebounceDelay })},
	{"PROBE_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.ProbeTimeout })},
	{"FAILURE_THRESHOLD", intVar(func(c *Config) *int { return &c.FailureThreshold })},
	{"NETWORK_POLL_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.NetworkPollInterval })},
	{"SYNC_BATCH_SIZE", intVar(func(c *Config) *int { return &c.SyncBatchSize })},
	{"MAX_RETRIES", intVar(func(c *Config) *int { return &c.MaxRetries })},
	{"AUTO_SYNC_DELAY", durationVar(func(c *Config) *time.Duration { return &c.AutoSyncDelay })},
	{"SECRET_PASSPHRASE", stringVar(func(c *Config) *string { return &c.SecretPassphrase })},
}

// parseEnv loads dotenv (when it exists) without overriding variables that
// are already set, then overlays cfg with STOREKEEPER_* variables. Panics
// on malformed values.
func parseEnv(cfg *Config, dotenv string) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	for _, v := range envVars {
		value, ok := os.LookupEnv(EnvPrefix + v.name)
		if !ok || value == "" {
			continue
		}
		if err := v.set(cfg, value); err != nil {
			panic(EnvPrefix + v.name + ": " + err.Error())
		}
	}
}
