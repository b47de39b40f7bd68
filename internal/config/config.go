// Package config handles application configuration for the rpc server and
// client binaries: YAML settings files with environment-variable overrides
// and sensible programmatic defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/dkoosis/goarpc/internal/logging"
)

var logger = logging.GetLogger("config")

// Settings is the top-level application configuration.
type Settings struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the listening side of the rpc framework.
type ServerConfig struct {
	Name             string `yaml:"name"`
	Address          string `yaml:"address"`
	Port             int    `yaml:"port"`
	MaxMessageBytes  int    `yaml:"max_message_bytes"`
	HighWaterMark    int    `yaml:"high_water_mark"`
	WorkerPoolSize   int    `yaml:"worker_pool_size"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

// ClientConfig configures the calling side of the rpc framework.
type ClientConfig struct {
	Address         string `yaml:"address"`
	MaxMessageBytes int    `yaml:"max_message_bytes"`
	CallTimeoutMS   int    `yaml:"call_timeout_ms"`
}

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

const (
	defaultServerName       = "goarpc server"
	defaultPort             = 8080
	defaultServerMaxMessage = 100 * 1024 * 1024
	defaultHighWaterMark    = 64 * 1024
	defaultWorkerPoolSize   = 8
	defaultRequestTimeoutMS = 30_000

	defaultClientMaxMessage = 64 * 1024
	defaultCallTimeoutMS    = 10_000
)

// New returns a Settings populated with defaults, suitable for running
// without a config file at all.
func New() *Settings {
	return &Settings{
		Server: ServerConfig{
			Name:             defaultServerName,
			Address:          "0.0.0.0",
			Port:             defaultPort,
			MaxMessageBytes:  defaultServerMaxMessage,
			HighWaterMark:    defaultHighWaterMark,
			WorkerPoolSize:   defaultWorkerPoolSize,
			RequestTimeoutMS: defaultRequestTimeoutMS,
		},
		Client: ClientConfig{
			Address:         "127.0.0.1:8080",
			MaxMessageBytes: defaultClientMaxMessage,
			CallTimeoutMS:   defaultCallTimeoutMS,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads a YAML settings file at path, applies defaults for any
// unset field, then applies environment-variable overrides, and validates
// the result.
func LoadConfig(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}

	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parsing %s", path)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, errors.Wrapf(err, "config: invalid settings from %s", path)
	}

	if cfg.Logging.File != "" {
		cfg.Logging.File = expandPath(cfg.Logging.File)
	}

	return cfg, nil
}

func applyDefaults(cfg *Settings) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = defaultServerName
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.MaxMessageBytes == 0 {
		cfg.Server.MaxMessageBytes = defaultServerMaxMessage
	}
	if cfg.Server.HighWaterMark == 0 {
		cfg.Server.HighWaterMark = defaultHighWaterMark
	}
	if cfg.Server.WorkerPoolSize == 0 {
		cfg.Server.WorkerPoolSize = defaultWorkerPoolSize
	}
	if cfg.Server.RequestTimeoutMS == 0 {
		cfg.Server.RequestTimeoutMS = defaultRequestTimeoutMS
	}
	if cfg.Client.MaxMessageBytes == 0 {
		cfg.Client.MaxMessageBytes = defaultClientMaxMessage
	}
	if cfg.Client.CallTimeoutMS == 0 {
		cfg.Client.CallTimeoutMS = defaultCallTimeoutMS
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Settings) {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Server.Port = n
		} else {
			logger.Warn("ignoring malformed PORT env override", "value", v)
		}
	}
	if v := os.Getenv("GOARPC_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("GOARPC_CLIENT_ADDRESS"); v != "" {
		cfg.Client.Address = v
	}
	if v := os.Getenv("GOARPC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func validate(cfg *Settings) error {
	if cfg.Server.Name == "" {
		return errors.New("server.name must not be empty")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return errors.Newf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.MaxMessageBytes <= 0 {
		return errors.New("server.max_message_bytes must be positive")
	}
	if cfg.Client.MaxMessageBytes <= 0 {
		return errors.New("client.max_message_bytes must be positive")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return errors.Newf("logging.level %q is not recognized", cfg.Logging.Level)
	}
	return nil
}

// GetServerAddress returns the server listen address as host:port.
func (s *Settings) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", s.Server.Address, s.Server.Port)
}

// expandPath expands a leading ~ to the current user's home directory.
// Non-~ paths are returned unchanged.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		logger.Warn("could not resolve home directory for path expansion", "path", path, "error", err)
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// parseInt parses a base-10 integer strictly: no partial matches, no
// whitespace tolerance, matching the rigor expected of config env overrides.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, errors.New("parseInt: empty string")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parseInt: %q", s)
	}
	return n, nil
}
