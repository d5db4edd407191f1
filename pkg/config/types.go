package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent callfacts configuration stored as
// config.toml in the .callfacts/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Gateway     GatewayConfig     `toml:"gateway"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Log         LogConfig         `toml:"log"`
	Client      ClientConfig      `toml:"client"`
}

// StorageConfig selects and configures the Record Store backend.
type StorageConfig struct {
	// Driver is one of "memory", "jsonfile", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	JSONPath    string `toml:"json_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// GatewayConfig bounds every store write made by the function-call gateway.
type GatewayConfig struct {
	// WriteTimeout is a time.ParseDuration string, e.g. "5s".
	WriteTimeout string `toml:"write_timeout,omitempty"`
	MaxRetries   uint   `toml:"max_retries,omitempty"`
}

// EventStreamConfig configures publishing of committed records. An empty
// Brokers value disables publishing.
type EventStreamConfig struct {
	// Brokers is a comma-separated list of Kafka bootstrap addresses.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// ClientConfig holds settings for commands that talk to a running server.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Debug bool `toml:"debug,omitempty"`
	JSON  bool `toml:"json,omitempty"`
}

// Storage driver names accepted by storage.driver.
const (
	DriverMemory   = "memory"
	DriverJSONFile = "jsonfile"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case DriverMemory, DriverJSONFile, DriverSQLite, DriverPostgres:
				c.Storage.Driver = v
				return nil
			}
			return fmt.Errorf("invalid value for storage.driver: %q (available: memory, jsonfile, sqlite, postgres)", v)
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.json_path": {
		get: func(c *Config) string { return c.Storage.JSONPath },
		set: func(c *Config, v string) error { c.Storage.JSONPath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"gateway.write_timeout": {
		get: func(c *Config) string { return c.Gateway.WriteTimeout },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for gateway.write_timeout: %w", err)
			}
			if d <= 0 {
				return fmt.Errorf("invalid value for gateway.write_timeout: must be positive, got %s", v)
			}
			c.Gateway.WriteTimeout = v
			return nil
		},
	},
	"gateway.max_retries": {
		get: func(c *Config) string {
			if c.Gateway.MaxRetries == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Gateway.MaxRetries), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for gateway.max_retries: %w", err)
			}
			c.Gateway.MaxRetries = uint(n)
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"log.debug": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.Debug) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for log.debug: %w", err)
			}
			c.Log.Debug = b
			return nil
		},
	},
	"log.json": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.JSON) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for log.json: %w", err)
			}
			c.Log.JSON = b
			return nil
		},
	},
}

// Timeout parses WriteTimeout. An empty value yields zero so callers fall back
// to their own default.
func (g GatewayConfig) Timeout() (time.Duration, error) {
	if g.WriteTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(g.WriteTimeout)
	if err != nil {
		return 0, fmt.Errorf("parsing gateway.write_timeout: %w", err)
	}
	return d, nil
}

// BrokerList splits Brokers on commas, dropping empty entries.
func (e EventStreamConfig) BrokerList() []string {
	var brokers []string
	for b := range strings.SplitSeq(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
