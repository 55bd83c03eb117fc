package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/flagx"
	"github.com/dmitrijs2005/storekeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is a DTO used exclusively for file unmarshalling. Zero values
// leave the corresponding Config field untouched.
type FileConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	ChangeFeedURL       string         `json:"changefeed_url" yaml:"changefeed_url"`
	ProbeURL            string         `json:"probe_url" yaml:"probe_url"`
	DataDir             string         `json:"data_dir" yaml:"data_dir"`
	WorkspaceID         string         `json:"workspace_id" yaml:"workspace_id"`
	UserID              string         `json:"user_id" yaml:"user_id"`
	LogLevel            string         `json:"log_level" yaml:"log_level"`
	HeartbeatInterval   timex.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	WakeThreshold       timex.Duration `json:"wake_threshold" yaml:"wake_threshold"`
	DebounceDelay       timex.Duration `json:"debounce_delay" yaml:"debounce_delay"`
	ProbeTimeout        timex.Duration `json:"probe_timeout" yaml:"probe_timeout"`
	FailureThreshold    int            `json:"failure_threshold" yaml:"failure_threshold"`
	NetworkPollInterval timex.Duration `json:"network_poll_interval" yaml:"network_poll_interval"`
	SyncBatchSize       int            `json:"sync_batch_size" yaml:"sync_batch_size"`
	MaxRetries          int            `json:"max_retries" yaml:"max_retries"`
	AutoSyncDelay       timex.Duration `json:"auto_sync_delay" yaml:"auto_sync_delay"`
	SecretPassphrase    string         `json:"secret_passphrase" yaml:"secret_passphrase"`
}

// parseFile overlays cfg with the file given by -c/-config in args.
// Panics on read or decode errors.
func parseFile(cfg *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.ServerEndpointAddr, fc.ServerEndpointAddr)
	setString(&cfg.ChangeFeedURL, fc.ChangeFeedURL)
	setString(&cfg.ProbeURL, fc.ProbeURL)
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.WorkspaceID, fc.WorkspaceID)
	setString(&cfg.UserID, fc.UserID)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.SecretPassphrase, fc.SecretPassphrase)

	for dst, src := range map[*time.Duration]timex.Duration{
		&cfg.HeartbeatInterval:   fc.HeartbeatInterval,
		&cfg.WakeThreshold:       fc.WakeThreshold,
		&cfg.DebounceDelay:       fc.DebounceDelay,
		&cfg.ProbeTimeout:        fc.ProbeTimeout,
		&cfg.NetworkPollInterval: fc.NetworkPollInterval,
		&cfg.AutoSyncDelay:       fc.AutoSyncDelay,
	} {
		if src.Duration != 0 {
			*dst = src.Duration
		}
	}

	for dst, src := range map[*int]int{
		&cfg.FailureThreshold: fc.FailureThreshold,
		&cfg.SyncBatchSize:    fc.SyncBatchSize,
		&cfg.MaxRetries:       fc.MaxRetries,
	} {
		if src != 0 {
			*dst = src
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
