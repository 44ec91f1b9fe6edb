package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Source types understood by the directory refresher.
const (
	SourceM3U    = "m3u"
	SourceXtream = "xtream"
)

// Source is one catalog the directory is built from.
type Source struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // m3u (default) or xtream
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Output is the container extension requested from Xtream servers (ts or m3u8).
	Output string `yaml:"output"`
}

// Config holds the complete application configuration
type Config struct {
	HTTP struct {
		Address         string        `yaml:"address"`
		Port            string        `yaml:"port"`
		PublicURL       string        `yaml:"public_url"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	DB struct {
		Path string `yaml:"path"`
	} `yaml:"db"`

	Cache struct {
		Dir string        `yaml:"dir"`
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	Fetch struct {
		Timeout   time.Duration `yaml:"timeout"`
		UserAgent string        `yaml:"user_agent"`
		MaxBytes  int           `yaml:"max_bytes"`
	} `yaml:"fetch"`

	Sources []Source `yaml:"sources"`

	// Verified list of curated channels, read from a URL or a local file.
	Verified struct {
		URL  string `yaml:"url"`
		Path string `yaml:"path"`
	} `yaml:"verified"`

	Refresh struct {
		Interval time.Duration `yaml:"interval"` // zero disables periodic refresh
	} `yaml:"refresh"`

	Xtream struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"xtream"`

	Playback struct {
		Autoplay    bool          `yaml:"autoplay"`
		OpenTimeout time.Duration `yaml:"open_timeout"` // zero waits indefinitely
	} `yaml:"playback"`

	Swarm struct {
		Enabled bool   `yaml:"enabled"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"swarm"`

	HLS struct {
		PollInterval time.Duration `yaml:"poll_interval"` // zero follows the playlist target duration
	} `yaml:"hls"`

	Playlist struct {
		GuideURLs []string `yaml:"guide_urls"` // advertised as url-tvg in the exported playlist
	} `yaml:"playlist"`

	Resilience ResilienceConfig `yaml:"resilience"`
}

// Validate performs validation on the configuration and reports every problem at once
func (c *Config) Validate() error {
	var errors []string

	if c.HTTP.Address == "" {
		errors = append(errors, "HTTP address is required")
	}
	if c.HTTP.Port == "" {
		errors = append(errors, "HTTP port is required")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errors = append(errors, "HTTP shutdown timeout must be positive")
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, "Log level must be one of: debug, info, warn, error")
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errors = append(errors, "Log format must be json or console")
	}

	if c.DB.Path == "" {
		errors = append(errors, "Database path is required")
	}

	if c.Cache.Dir == "" {
		errors = append(errors, "Cache directory is required")
	}
	if c.Cache.TTL < 0 {
		errors = append(errors, "Cache TTL must not be negative")
	}

	if c.Fetch.Timeout <= 0 {
		errors = append(errors, "Fetch timeout must be positive")
	}
	if c.Fetch.MaxBytes <= 0 {
		errors = append(errors, "Fetch max bytes must be positive")
	}

	names := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			errors = append(errors, fmt.Sprintf("Source %d: name is required", i))
		} else if names[src.Name] {
			errors = append(errors, fmt.Sprintf("Source %d (%s): duplicate name", i, src.Name))
		}
		names[src.Name] = true

		if src.URL == "" {
			errors = append(errors, fmt.Sprintf("Source %d (%s): URL is required", i, src.Name))
		}
		switch src.Type {
		case "", SourceM3U:
		case SourceXtream:
			if src.Username == "" || src.Password == "" {
				errors = append(errors, fmt.Sprintf("Source %d (%s): xtream sources need username and password", i, src.Name))
			}
		default:
			errors = append(errors, fmt.Sprintf("Source %d (%s): unknown type %q", i, src.Name, src.Type))
		}
	}

	if c.Verified.URL != "" && c.Verified.Path != "" {
		errors = append(errors, "Verified list: set either url or path, not both")
	}

	if c.Refresh.Interval < 0 {
		errors = append(errors, "Refresh interval must not be negative")
	}

	if c.Xtream.RequestsPerSecond <= 0 {
		errors = append(errors, "Xtream requests per second must be positive")
	}
	if c.Xtream.Burst <= 0 {
		errors = append(errors, "Xtream burst must be positive")
	}

	if c.Playback.OpenTimeout < 0 {
		errors = append(errors, "Playback open timeout must not be negative")
	}

	if c.Swarm.Enabled && c.Swarm.DataDir == "" {
		errors = append(errors, "Swarm data directory is required when the swarm engine is enabled")
	}

	if c.HLS.PollInterval < 0 {
		errors = append(errors, "HLS poll interval must not be negative")
	}

	if err := c.Resilience.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("Resilience config: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
)

// Default returns a Config with sensible default values
func Default() *Config {
	cfg := &Config{}

	cfg.HTTP.Address = "127.0.0.1"
	cfg.HTTP.Port = "8080"
	cfg.HTTP.ShutdownTimeout = 10 * time.Second

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	cfg.DB.Path = "data/iptv-hub.db"

	cfg.Cache.Dir = "data/cache"
	cfg.Cache.TTL = 15 * time.Minute

	cfg.Fetch.Timeout = 30 * time.Second
	cfg.Fetch.UserAgent = "iptv-hub"
	cfg.Fetch.MaxBytes = 64 * 1024 * 1024

	cfg.Refresh.Interval = time.Hour

	cfg.Xtream.RequestsPerSecond = 2
	cfg.Xtream.Burst = 1

	cfg.Playback.Autoplay = true

	cfg.Swarm.Enabled = true
	cfg.Swarm.DataDir = "data/swarm"

	cfg.Resilience = *DefaultResilienceConfig()

	return cfg
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return c.HTTP.Address + ":" + c.HTTP.Port
}

// BaseURL returns the externally reachable URL of the HTTP server.
func (c *Config) BaseURL() string {
	if c.HTTP.PublicURL != "" {
		return strings.TrimRight(c.HTTP.PublicURL, "/")
	}
	host := c.HTTP.Address
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + host + ":" + c.HTTP.Port
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load loads configuration from a file (if present) and applies environment variable overrides
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg = Default()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	p := &envParser{}

	p.parseString("HTTP_ADDRESS", &cfg.HTTP.Address)
	p.parseString("HTTP_PORT", &cfg.HTTP.Port)
	p.parseString("HTTP_PUBLIC_URL", &cfg.HTTP.PublicURL)
	p.parseDuration("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)

	p.parseEnum("LOG_LEVEL", &cfg.Log.Level, validLogLevels)
	p.parseEnum("LOG_FORMAT", &cfg.Log.Format, validLogFormats)

	p.parseString("DB_PATH", &cfg.DB.Path)

	if val := os.Getenv("CACHE_DIR"); val != "" {
		absPath, err := validateDir(val)
		if err != nil {
			p.errors = append(p.errors, fmt.Sprintf("CACHE_DIR: %v", err))
		} else {
			cfg.Cache.Dir = absPath
		}
	}
	p.parseDuration("CACHE_TTL", &cfg.Cache.TTL)

	p.parseDuration("FETCH_TIMEOUT", &cfg.Fetch.Timeout)
	p.parseString("FETCH_USER_AGENT", &cfg.Fetch.UserAgent)
	p.parseByteSize("FETCH_MAX_BYTES", &cfg.Fetch.MaxBytes)

	p.parseString("VERIFIED_URL", &cfg.Verified.URL)
	p.parseString("VERIFIED_PATH", &cfg.Verified.Path)

	p.parseDuration("REFRESH_INTERVAL", &cfg.Refresh.Interval)

	p.parseFloat("XTREAM_REQUESTS_PER_SECOND", &cfg.Xtream.RequestsPerSecond)
	p.parseInt("XTREAM_BURST", &cfg.Xtream.Burst)

	p.parseBool("PLAYBACK_AUTOPLAY", &cfg.Playback.Autoplay)
	p.parseDuration("PLAYBACK_OPEN_TIMEOUT", &cfg.Playback.OpenTimeout)

	p.parseBool("SWARM_ENABLED", &cfg.Swarm.Enabled)
	p.parseString("SWARM_DATA_DIR", &cfg.Swarm.DataDir)

	p.parseDuration("HLS_POLL_INTERVAL", &cfg.HLS.PollInterval)

	if val := os.Getenv("PLAYLIST_GUIDE_URLS"); val != "" {
		cfg.Playlist.GuideURLs = nil
		for _, u := range strings.Split(val, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.Playlist.GuideURLs = append(cfg.Playlist.GuideURLs, u)
			}
		}
	}

	cfg.Resilience.applyEnv(p)

	return p.err()
}

// validateDir validates and normalizes a directory path to an absolute one
func validateDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("directory cannot be empty")
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	return absPath, nil
}

// LogSummary writes the effective configuration to the logger. Credentials are omitted.
func (c *Config) LogSummary(l zerolog.Logger) {
	sources := zerolog.Arr()
	for _, src := range c.Sources {
		typ := src.Type
		if typ == "" {
			typ = SourceM3U
		}
		sources = sources.Str(src.Name + " (" + typ + ")")
	}

	l.Info().
		Str("addr", c.Addr()).
		Str("public_url", c.BaseURL()).
		Str("log_level", c.Log.Level).
		Str("db_path", c.DB.Path).
		Str("cache_dir", c.Cache.Dir).
		Dur("cache_ttl", c.Cache.TTL).
		Array("sources", sources).
		Bool("verified_list", c.Verified.URL != "" || c.Verified.Path != "").
		Dur("refresh_interval", c.Refresh.Interval).
		Bool("autoplay", c.Playback.Autoplay).
		Dur("open_timeout", c.Playback.OpenTimeout).
		Bool("swarm_enabled", c.Swarm.Enabled).
		Int("cb_failure_threshold", c.Resilience.CBFailureThreshold).
		Msg("configuration loaded")
}
