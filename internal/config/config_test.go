package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "test.db",
			MaxOpenConns: 25,
			MaxIdleConns: 10,
			LogLevel:     "warn",
		},
		Storage: StorageConfig{BaseDir: "./data"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Worker: WorkerConfig{
			Count:       2,
			JobTimeout:  time.Hour,
			SoftTimeout: 50 * time.Minute,
		},
		Compose: ComposeConfig{WebcamShape: "circle"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Load without config file should use defaults
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)

	// Database defaults
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "vidarr.db", cfg.Database.DSN)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	// Worker defaults
	assert.Equal(t, 2, cfg.Worker.Count)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, time.Hour, cfg.Worker.JobTimeout)
	assert.Equal(t, 50*time.Minute, cfg.Worker.SoftTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Worker.JobRetention)

	// Service defaults
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Services.LLM.BaseURL)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Services.LLM.Model)
	assert.Equal(t, "whisper-large-v3", cfg.Services.Speech.Model)
	assert.Equal(t, "fr", cfg.Services.Speech.Language)

	// Compose defaults
	assert.Equal(t, 1486, cfg.Compose.WebcamX)
	assert.Equal(t, 645, cfg.Compose.WebcamY)
	assert.Equal(t, 389, cfg.Compose.WebcamSize)
	assert.Equal(t, "circle", cfg.Compose.WebcamShape)
	assert.Equal(t, "#FFB6C1", cfg.Compose.BorderColor)
	assert.Equal(t, 4, cfg.Compose.BorderWidth)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
database:
  dsn: custom.db
worker:
  count: 4
services:
  speech:
    language: en
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "custom.db", cfg.Database.DSN)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, "en", cfg.Services.Speech.Language)
	// Unset values keep defaults
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VIDARR_SERVER_PORT", "7070")
	t.Setenv("VIDARR_SERVICES_LLM_MODEL", "openai/gpt-4o")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "openai/gpt-4o", cfg.Services.LLM.Model)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "invalid driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "database.driver",
		},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.Database.DSN = "" },
			wantErr: "database.dsn",
		},
		{
			name:    "missing base dir",
			mutate:  func(c *Config) { c.Storage.BaseDir = "" },
			wantErr: "storage.base_dir",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Worker.Count = 0 },
			wantErr: "worker.count",
		},
		{
			name:    "soft timeout above hard",
			mutate:  func(c *Config) { c.Worker.SoftTimeout = 2 * time.Hour },
			wantErr: "worker.soft_timeout",
		},
		{
			name:    "invalid webcam shape",
			mutate:  func(c *Config) { c.Compose.WebcamShape = "hexagon" },
			wantErr: "compose.webcam_shape",
		},
		{
			name: "blobstore enabled without credentials",
			mutate: func(c *Config) {
				c.BlobStore.Enabled = true
				c.BlobStore.Endpoint = "localhost:9000"
			},
			wantErr: "blobstore credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", c.Address())
}

func TestStorageConfig_Paths(t *testing.T) {
	c := StorageConfig{BaseDir: "/data", ProjectsDir: "projects", AssetsDir: "assets"}
	assert.Equal(t, "/data/projects", c.ProjectsPath())
	assert.Equal(t, "/data/assets", c.AssetsPath())
}
