package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"nutriserve/logger"
)

const (
	DefaultPort            = 8000
	DefaultRoot            = "."
	DefaultShutdownTimeout = "5s"
	DefaultConfigPath      = "config/config.json"
	DefaultEnvFile         = ".env"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	LiveReload LiveReloadConfig `json:"livereload"`
	LogLevel   string           `json:"log_level"`
}

type ServerConfig struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	Root             string `json:"root"`
	ShutdownTimeout  string `json:"shutdown_timeout"`
	DirectoryListing bool   `json:"directory_listing"`
	NoCache          bool   `json:"no_cache"`
	Gzip             bool   `json:"gzip"`
	HealthPath       string `json:"health_path"`

	// Private field to store parsed duration
	shutdownTimeoutDuration time.Duration
}

type LiveReloadConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`

	intervalDuration time.Duration
}

// Default returns the configuration used when nothing else is provided:
// port 8000, the working directory, listening on all interfaces.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             DefaultPort,
			Root:             DefaultRoot,
			ShutdownTimeout:  DefaultShutdownTimeout,
			DirectoryListing: true,
		},
		LiveReload: LiveReloadConfig{
			Interval: "1s",
		},
		LogLevel: "info",
	}
}

// Load builds a Config from defaults, the optional JSON file at configPath,
// the optional dotenv file at envPath and the process environment, in that
// order. An empty configPath falls back to NUTRISERVE_CONFIG and then to
// config/config.json when it exists. The result is not validated; callers
// apply flag overrides first and then call Validate.
func Load(configPath, envPath string) (*Config, error) {
	log := logger.GetLogger()
	cfg := Default()

	if envPath != "" {
		if err := loadEnvFile(envPath); err != nil {
			return nil, err
		}
	}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		log.Debug("Loaded config file", map[string]interface{}{
			"path": path,
		})
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile reads a dotenv file without overriding variables already set
// in the environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv("NUTRISERVE_CONFIG"); env != "" {
		return env, nil
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return DefaultConfigPath, nil
	}
	return "", nil
}

func (c *Config) loadFile(path string) error {
	configFile, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(configFile, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("NUTRISERVE_ROOT"); v != "" {
		c.Server.Root = v
	}
	if v := os.Getenv("NUTRISERVE_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("NUTRISERVE_SHUTDOWN_TIMEOUT"); v != "" {
		c.Server.ShutdownTimeout = v
	}
	if v := os.Getenv("NUTRISERVE_HEALTH_PATH"); v != "" {
		c.Server.HealthPath = v
	}
	if v := os.Getenv("NUTRISERVE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"NUTRISERVE_NO_CACHE", &c.Server.NoCache},
		{"NUTRISERVE_GZIP", &c.Server.Gzip},
		{"NUTRISERVE_DIRECTORY_LISTING", &c.Server.DirectoryListing},
		{"NUTRISERVE_LIVERELOAD", &c.LiveReload.Enabled},
	}
	for _, b := range bools {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", b.key, v, err)
		}
		*b.dst = parsed
	}
	return nil
}

// Validate checks the configuration and parses duration strings. It must be
// called before the duration getters are used.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range 0-65535", c.Server.Port)
	}

	if c.Server.Root == "" {
		c.Server.Root = DefaultRoot
	}
	root, err := filepath.Abs(c.Server.Root)
	if err != nil {
		return fmt.Errorf("invalid root directory %q: %w", c.Server.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root directory %q: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %q is not a directory", root)
	}
	c.Server.Root = root

	if err := c.Server.ToDuration(); err != nil {
		return err
	}
	if err := c.LiveReload.ToDuration(); err != nil {
		return err
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Server.HealthPath != "" && c.Server.HealthPath[0] != '/' {
		return fmt.Errorf("health_path %q must start with /", c.Server.HealthPath)
	}

	return nil
}

// ToDuration converts the string values to time.Duration after unmarshaling
func (s *ServerConfig) ToDuration() error {
	d, err := time.ParseDuration(s.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("invalid shutdown_timeout duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", s.ShutdownTimeout)
	}
	s.shutdownTimeoutDuration = d
	return nil
}

func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	if s.shutdownTimeoutDuration == 0 {
		d, _ := time.ParseDuration(DefaultShutdownTimeout)
		return d
	}
	return s.shutdownTimeoutDuration
}

// Addr is the host:port the listener binds
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (l *LiveReloadConfig) ToDuration() error {
	if l.Interval == "" {
		l.Interval = "1s"
	}
	d, err := time.ParseDuration(l.Interval)
	if err != nil {
		return fmt.Errorf("invalid livereload interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("livereload interval must be positive, got %s", l.Interval)
	}
	l.intervalDuration = d
	return nil
}

func (l *LiveReloadConfig) GetInterval() time.Duration {
	if l.intervalDuration == 0 {
		return time.Second
	}
	return l.intervalDuration
}
