// Package config loads configuration from an optional file and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr      string        `yaml:"listen_addr" toml:"listen_addr"`
	MetricsAddr     string        `yaml:"metrics_addr" toml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// Serving root and the two reserved names hidden from every view of it
	RootDir string `yaml:"root_dir" toml:"root_dir"`
	PIDFile string `yaml:"pid_file" toml:"pid_file"`
	LogFile string `yaml:"log_file" toml:"log_file"`

	// Listing recursion bound (0 = unbounded)
	MaxDepth int `yaml:"max_depth" toml:"max_depth"`

	// Logging
	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`
	LogOutput string `yaml:"log_output" toml:"log_output"`
}

// Defaults returns the configuration used when neither a file nor the
// environment sets a value.
func Defaults() *Config {
	return &Config{
		ListenAddr:      ":5299",
		MetricsAddr:     ":9299",
		ShutdownTimeout: 5 * time.Second,
		RootDir:         ".",
		PIDFile:         "simple_server.pid",
		LogFile:         "server.log",
		MaxDepth:        64,
		LogLevel:        "info",
		LogFormat:       "console",
		LogOutput:       "stdout",
	}
}

// Load reads the optional config file at path (empty for none), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ListenAddr = envOr("LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = envOrEmpty("METRICS_ADDR", cfg.MetricsAddr)
	cfg.ShutdownTimeout = envDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.RootDir = envOr("SERVE_DIR", cfg.RootDir)
	cfg.PIDFile = envOr("PID_FILE", cfg.PIDFile)
	cfg.LogFile = envOr("LOG_FILE", cfg.LogFile)
	cfg.MaxDepth = envInt("MAX_DEPTH", cfg.MaxDepth)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)
	cfg.LogOutput = envOr("LOG_OUTPUT", cfg.LogOutput)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parse toml config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	return nil
}

func (c *Config) validate() error {
	root, err := filepath.Abs(c.RootDir)
	if err != nil {
		return fmt.Errorf("resolve root dir %s: %w", c.RootDir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat root dir %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root dir %s is not a directory", root)
	}
	c.RootDir = root

	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must be >= 0, got %d", c.MaxDepth)
	}
	if c.PIDFile == "" {
		return fmt.Errorf("pid file name is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envOrEmpty is envOr, except that a variable set to the empty string wins.
func envOrEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
