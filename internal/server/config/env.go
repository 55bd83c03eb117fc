package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment variable the server reads.
const EnvPrefix = "STOREKEEPER_SERVER_"

var stringEnv = map[string]func(c *Config) *string{
	"GRPC_ADDR":    func(c *Config) *string { return &c.EndpointAddrGRPC },
	"HTTP_ADDR":    func(c *Config) *string { return &c.EndpointAddrHTTP },
	"DATABASE_DSN": func(c *Config) *string { return &c.DatabaseDSN },
	"SECRET_KEY":   func(c *Config) *string { return &c.SecretKey },
	"API_KEY":      func(c *Config) *string { return &c.APIKey },
	"LOG_LEVEL":    func(c *Config) *string { return &c.LogLevel },
	"S3_USER":      func(c *Config) *string { return &c.S3RootUser },
	"S3_PASSWORD":  func(c *Config) *string { return &c.S3RootPassword },
	"S3_BUCKET":    func(c *Config) *string { return &c.S3Bucket },
	"S3_REGION":    func(c *Config) *string { return &c.S3Region },
	"S3_ENDPOINT":  func(c *Config) *string { return &c.S3BaseEndpoint },
}

var durationEnv = map[string]func(c *Config) *time.Duration{
	"ACCESS_TOKEN_TTL":  func(c *Config) *time.Duration { return &c.AccessTokenValidityDuration },
	"REFRESH_TOKEN_TTL": func(c *Config) *time.Duration { return &c.RefreshTokenValidityDuration },
	"PRESIGN_TTL":       func(c *Config) *time.Duration { return &c.PresignValidityDuration },
}

// parseEnv loads dotenv (when it exists) without overriding variables that
// are already set, then overlays config with STOREKEEPER_SERVER_*
// variables. Panics on malformed durations.
func parseEnv(config *Config, dotenv string) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	for name, field := range stringEnv {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*field(config) = v
		}
	}
	for name, field := range durationEnv {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(EnvPrefix + name + ": " + err.Error())
		}
		*field(config) = d
	}
}
