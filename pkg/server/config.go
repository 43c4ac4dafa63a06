package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the resolved runtime configuration.
type Config struct {
	BindAddr       string
	Port           int
	ManagementPort int // UDP, reserved (bound, traffic discarded)
	MetricsPort    int // internal HTTP for /metrics and /health, 0 = disabled
	WebSocketPort  int // public HTTP for /ws, 0 = disabled
	DatabasePath   string
	MOTD           string

	ReadTimeoutSeconds   int
	WriteTimeoutSeconds  int
	ShutdownGraceSeconds int
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{
		BindAddr:             "127.0.0.1",
		Port:                 7777,
		ManagementPort:       7778,
		MetricsPort:          9090,
		WebSocketPort:        0,
		DatabasePath:         "parley.db",
		MOTD:                 "This is the servers message of the day.",
		ReadTimeoutSeconds:   1,
		WriteTimeoutSeconds:  5,
		ShutdownGraceSeconds: 10,
	}
}

// TOMLConfig mirrors the config file layout.
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
}

type ServerSection struct {
	BindAddr       string `toml:"bind_addr"`
	Port           int    `toml:"port"`
	ManagementPort int    `toml:"management_port"`
	MetricsPort    int    `toml:"metrics_port"`
	WebSocketPort  int    `toml:"websocket_port"`
	DatabasePath   string `toml:"database_path"`
	MOTD           string `toml:"motd"`
}

type LimitsSection struct {
	ReadTimeoutSeconds   int `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds  int `toml:"write_timeout_seconds"`
	ShutdownGraceSeconds int `toml:"shutdown_grace_seconds"`
}

// LoadConfig loads the TOML config file, writing a documented default file
// when none exists, then applies PARLEY_* environment overrides.
func LoadConfig(path string) (Config, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Best effort: a read-only location still leaves us runnable on
		// defaults.
		writeDefaultConfig(path)
		return applyEnvOverrides(cfg), nil
	}

	var fileCfg TOMLConfig
	if _, err := toml.DecodeFile(path, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg = fileCfg.apply(cfg)
	return applyEnvOverrides(cfg), nil
}

// apply overlays the file values onto base, keeping defaults for zero
// values.
func (c TOMLConfig) apply(base Config) Config {
	if strings.TrimSpace(c.Server.BindAddr) != "" {
		base.BindAddr = c.Server.BindAddr
	}
	if c.Server.Port != 0 {
		base.Port = c.Server.Port
	}
	if c.Server.ManagementPort != 0 {
		base.ManagementPort = c.Server.ManagementPort
	}
	if c.Server.MetricsPort != 0 {
		base.MetricsPort = c.Server.MetricsPort
	}
	if c.Server.WebSocketPort != 0 {
		base.WebSocketPort = c.Server.WebSocketPort
	}
	if strings.TrimSpace(c.Server.DatabasePath) != "" {
		base.DatabasePath = c.Server.DatabasePath
	}
	if strings.TrimSpace(c.Server.MOTD) != "" {
		base.MOTD = c.Server.MOTD
	}
	if c.Limits.ReadTimeoutSeconds != 0 {
		base.ReadTimeoutSeconds = c.Limits.ReadTimeoutSeconds
	}
	if c.Limits.WriteTimeoutSeconds != 0 {
		base.WriteTimeoutSeconds = c.Limits.WriteTimeoutSeconds
	}
	if c.Limits.ShutdownGraceSeconds != 0 {
		base.ShutdownGraceSeconds = c.Limits.ShutdownGraceSeconds
	}
	return base
}

// applyEnvOverrides applies PARLEY_SECTION_KEY environment variables, e.g.
// PARLEY_SERVER_PORT=8888.
func applyEnvOverrides(cfg Config) Config {
	if v := os.Getenv("PARLEY_SERVER_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("PARLEY_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("PARLEY_SERVER_MANAGEMENT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.ManagementPort = port
		}
	}
	if v := os.Getenv("PARLEY_SERVER_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = port
		}
	}
	if v := os.Getenv("PARLEY_SERVER_WEBSOCKET_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.WebSocketPort = port
		}
	}
	if v := os.Getenv("PARLEY_SERVER_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("PARLEY_SERVER_MOTD"); v != "" {
		cfg.MOTD = v
	}
	if v := os.Getenv("PARLEY_LIMITS_READ_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReadTimeoutSeconds = n
		}
	}
	if v := os.Getenv("PARLEY_LIMITS_WRITE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WriteTimeoutSeconds = n
		}
	}
	if v := os.Getenv("PARLEY_LIMITS_SHUTDOWN_GRACE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ShutdownGraceSeconds = n
		}
	}
	return cfg
}

// writeDefaultConfig writes a documented default config file.
func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	content := `# Parley Server Configuration
# Auto-generated with default values. Restart the server after editing.
#
# Environment variables override these settings:
# PARLEY_SECTION_KEY (e.g. PARLEY_SERVER_PORT=8888)

[server]
# Address to bind the chat listener to
bind_addr = "127.0.0.1"

# Chat port (TCP)
port = 7777

# Management port (UDP). Reserved for future remote management; the
# server binds it and discards traffic.
management_port = 7778

# Internal HTTP port for /metrics and /health. Never expose publicly.
# Set to 0 to disable.
metrics_port = 9090

# Public HTTP port serving the chat protocol over WebSocket at /ws.
# Set to 0 to disable.
# websocket_port = 8080

# Path to the SQLite database file
database_path = "parley.db"

# Message of the day, sent to every client on connect
motd = "This is the servers message of the day."

[limits]
# Socket read timeout in seconds (queue servicing tick)
read_timeout_seconds = 1

# Socket write timeout in seconds
write_timeout_seconds = 5

# How long a graceful shutdown waits for connection workers
shutdown_grace_seconds = 10
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
