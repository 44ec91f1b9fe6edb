package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1", cfg.HTTP.Address)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Playback.Autoplay)
	assert.Zero(t, cfg.Playback.OpenTimeout, "no intrinsic open timeout")
	assert.True(t, cfg.Swarm.Enabled)
	assert.Empty(t, cfg.Sources)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "valid m3u and xtream sources",
			mutate: func(c *Config) {
				c.Sources = []Source{
					{Name: "a", URL: "http://a/list.m3u"},
					{Name: "b", Type: SourceXtream, URL: "http://b", Username: "u", Password: "p"},
				}
			},
		},
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.HTTP.Port = "" },
			wantErr: "HTTP port is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "Log level",
		},
		{
			name:    "duplicate source names",
			mutate:  func(c *Config) { c.Sources = []Source{{Name: "a", URL: "x"}, {Name: "a", URL: "y"}} },
			wantErr: "duplicate name",
		},
		{
			name:    "xtream without credentials",
			mutate:  func(c *Config) { c.Sources = []Source{{Name: "x", Type: SourceXtream, URL: "http://x"}} },
			wantErr: "username and password",
		},
		{
			name:    "unknown source type",
			mutate:  func(c *Config) { c.Sources = []Source{{Name: "x", Type: "ftp", URL: "http://x"}} },
			wantErr: `unknown type "ftp"`,
		},
		{
			name: "verified url and path",
			mutate: func(c *Config) {
				c.Verified.URL = "http://v"
				c.Verified.Path = "/v.json"
			},
			wantErr: "either url or path",
		},
		{
			name: "swarm without data dir",
			mutate: func(c *Config) {
				c.Swarm.DataDir = ""
			},
			wantErr: "Swarm data directory",
		},
		{
			name:    "negative open timeout",
			mutate:  func(c *Config) { c.Playback.OpenTimeout = -time.Second },
			wantErr: "open timeout",
		},
		{
			name:    "bad resilience",
			mutate:  func(c *Config) { c.Resilience.CBTimeout = 0 },
			wantErr: "CBTimeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Address = ""
	cfg.DB.Path = ""
	cfg.Fetch.Timeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP address is required")
	assert.Contains(t, err.Error(), "Database path is required")
	assert.Contains(t, err.Error(), "Fetch timeout must be positive")
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `http:
  address: "0.0.0.0"
  port: "9090"
log:
  level: debug
cache:
  dir: "/tmp/cache"
  ttl: "2h"
sources:
  - name: "main"
    url: "http://example.com/playlist.m3u"
  - name: "provider"
    type: xtream
    url: "http://provider.example"
    username: "user"
    password: "secret"
verified:
  url: "http://example.com/verified.json"
playback:
  autoplay: false
  open_timeout: "20s"
resilience:
  cb_failure_threshold: 3
  cb_timeout: "20s"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.HTTP.Address)
	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, SourceXtream, cfg.Sources[1].Type)
	assert.Equal(t, "http://example.com/verified.json", cfg.Verified.URL)
	assert.False(t, cfg.Playback.Autoplay)
	assert.Equal(t, 20*time.Second, cfg.Playback.OpenTimeout)
	assert.Equal(t, 3, cfg.Resilience.CBFailureThreshold)
	assert.Equal(t, 1, cfg.Resilience.CBHalfOpenRequests, "unset keys keep defaults")
	assert.Equal(t, "data/iptv-hub.db", cfg.DB.Path)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Invalid(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unterminated"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"HTTP_ADDRESS":          "192.168.1.1",
		"HTTP_PORT":             "9999",
		"LOG_LEVEL":             "WARN",
		"CACHE_DIR":             "/custom/cache",
		"CACHE_TTL":             "3h",
		"FETCH_MAX_BYTES":       "8MB",
		"VERIFIED_PATH":         "/etc/verified.json",
		"REFRESH_INTERVAL":      "0s",
		"PLAYBACK_AUTOPLAY":     "false",
		"PLAYBACK_OPEN_TIMEOUT": "45s",
		"SWARM_ENABLED":         "0",
		"XTREAM_BURST":          "4",
		"CB_FAILURE_THRESHOLD":  "9",
		"PLAYLIST_GUIDE_URLS":   "http://epg.example/a.xml, ,http://epg.example/b.xml",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg := Default()
	require.NoError(t, applyEnvOverrides(cfg))

	assert.Equal(t, "192.168.1.1", cfg.HTTP.Address)
	assert.Equal(t, "9999", cfg.HTTP.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/custom/cache", cfg.Cache.Dir)
	assert.Equal(t, 3*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 8*1024*1024, cfg.Fetch.MaxBytes)
	assert.Equal(t, "/etc/verified.json", cfg.Verified.Path)
	assert.Zero(t, cfg.Refresh.Interval)
	assert.False(t, cfg.Playback.Autoplay)
	assert.Equal(t, 45*time.Second, cfg.Playback.OpenTimeout)
	assert.False(t, cfg.Swarm.Enabled)
	assert.Equal(t, 4, cfg.Xtream.Burst)
	assert.Equal(t, 9, cfg.Resilience.CBFailureThreshold)
	assert.Equal(t, []string{"http://epg.example/a.xml", "http://epg.example/b.xml"}, cfg.Playlist.GuideURLs)
}

func TestApplyEnvOverrides_CollectsErrors(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("PLAYBACK_AUTOPLAY", "maybe")
	t.Setenv("CB_HALF_OPEN_REQUESTS", "-1")

	err := applyEnvOverrides(Default())
	require.Error(t, err)
	for _, want := range []string{"CACHE_TTL", "LOG_LEVEL must be one of: debug, error, info, warn", "PLAYBACK_AUTOPLAY", "CB_HALF_OPEN_REQUESTS"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateDir(t *testing.T) {
	_, err := validateDir("")
	assert.Error(t, err)

	dir, err := validateDir("/tmp/cache")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cache", dir)

	dir, err = validateDir("cache")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
}

func TestLoadWithMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", "/non/existent/config.yaml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().HTTP.Port, cfg.HTTP.Port)
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", "/non/existent/config.yaml")
	t.Setenv("HTTP_SHUTDOWN_TIMEOUT", "bogus")

	_, err := Load()
	assert.ErrorContains(t, err, "HTTP_SHUTDOWN_TIMEOUT")
}

func TestBaseURL(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "http://127.0.0.1:8080", cfg.BaseURL())

	cfg.HTTP.Address = "0.0.0.0"
	assert.Equal(t, "http://127.0.0.1:8080", cfg.BaseURL())

	cfg.HTTP.PublicURL = "https://tv.example.com/"
	assert.Equal(t, "https://tv.example.com", cfg.BaseURL())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}
