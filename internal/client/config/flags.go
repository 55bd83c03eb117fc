package config

import (
	"github.com/spf13/pflag"
)

// BindFlags registers the client flags on fs with the current values of c
// as defaults, so a flag only overrides earlier sources when given.
//
//	-a, --server      address:port of the backend gRPC endpoint
//	-w, --workspace   workspace to operate on
//	-u, --user        user id
//	-d, --data-dir    directory holding the local store
//	-l, --log-level   debug, info, warn or error
//	-i, --interval    network poll interval
//	-c, --config      config file, consumed by LoadConfig
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ServerEndpointAddr, "server", "a", c.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&c.ChangeFeedURL, "changefeed", c.ChangeFeedURL, "changefeed base URL (ws:// or wss://)")
	fs.StringVar(&c.ProbeURL, "probe-url", c.ProbeURL, "HTTP URL probed for reachability instead of gRPC health")
	fs.StringVarP(&c.DataDir, "data-dir", "d", c.DataDir, "directory holding the local store")
	fs.StringVarP(&c.WorkspaceID, "workspace", "w", c.WorkspaceID, "workspace id")
	fs.StringVarP(&c.UserID, "user", "u", c.UserID, "user id")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "log level")
	fs.DurationVar(&c.HeartbeatInterval, "heartbeat", c.HeartbeatInterval, "connectivity heartbeat interval")
	fs.DurationVarP(&c.NetworkPollInterval, "interval", "i", c.NetworkPollInterval, "network poll interval")
	fs.IntVar(&c.SyncBatchSize, "batch", c.SyncBatchSize, "queue items pushed per batch")
	fs.IntVar(&c.MaxRetries, "max-retries", c.MaxRetries, "push attempts before an item needs manual attention")
	fs.StringP("config", "c", "", "path to config file")
}
