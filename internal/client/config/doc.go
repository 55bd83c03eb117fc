// Package config loads runtime configuration for the storekeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .yaml or .yml are read as YAML, anything else as JSON.
//  3. A .env file in the working directory, then STOREKEEPER_* environment
//     variables (see envVars).
//  4. Command-line flags bound by (*Config).BindFlags.
//
// Durations in files may be Go duration strings ("3s") or integer
// nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "heartbeat_interval": "30s",
//	  "workspace_id": "W1"
//	}
package config
