// Package config provides configuration management for vidarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute
	defaultMaxUploadBytes  = 8 * 1024 * 1024 * 1024 // 8GB raw recordings
	defaultWorkerCount     = 2
	defaultPollInterval    = 5 * time.Second
	defaultLockTimeout     = 30 * time.Minute
	defaultJobTimeout      = time.Hour
	defaultSoftTimeout     = 50 * time.Minute
	defaultJobRetention    = 24 * time.Hour
	defaultHTTPTimeout     = 60 * time.Second
	defaultSpeechTimeout   = 5 * time.Minute
	defaultRetryAttempts   = 3
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Services  ServicesConfig  `mapstructure:"services"`
	BlobStore BlobStoreConfig `mapstructure:"blobstore"`
	Compose   ComposeConfig   `mapstructure:"compose"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// MaxUploadSize caps raw recording uploads (screen/webcam files).
	// Supports human-readable values like "8GB" or raw byte counts.
	MaxUploadSize ByteSize `mapstructure:"max_upload_size"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir     string `mapstructure:"base_dir"`
	ProjectsDir string `mapstructure:"projects_dir"`
	// AssetsDir holds static production assets (outro clip, channel logo).
	AssetsDir string `mapstructure:"assets_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// WorkerConfig holds pipeline worker pool configuration.
type WorkerConfig struct {
	// Count is the number of concurrent stage workers.
	Count int `mapstructure:"count"`
	// PollInterval is how often idle workers poll the queue.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// LockTimeout is how long a claimed job may hold its lock before
	// stale recovery re-queues it (worker crash handling).
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// JobTimeout is the hard per-stage execution deadline.
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	// SoftTimeout is the wind-down warning deadline; stages check it
	// between encoder invocations and stop starting new work past it.
	SoftTimeout time.Duration `mapstructure:"soft_timeout"`
	// JobRetention is how long terminal jobs are kept before cleanup.
	JobRetention time.Duration `mapstructure:"job_retention"`
	// RetryAttempts is the per-job retry budget for transient failures.
	RetryAttempts int `mapstructure:"retry_attempts"`
}

// FFmpegConfig holds encoder binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = PATH lookup)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = PATH lookup)
}

// ServicesConfig holds external service credentials and tuning.
// API keys are redacted from log output by the observability package.
type ServicesConfig struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	Speech     SpeechConfig     `mapstructure:"speech"`
	StockVideo StockVideoConfig `mapstructure:"stockvideo"`
	VideoHost  VideoHostConfig  `mapstructure:"videohost"`
}

// LLMConfig holds chat-completion service configuration (OpenRouter).
type LLMConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	ImageModel string        `mapstructure:"image_model"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SpeechConfig holds transcription service configuration (Groq).
type SpeechConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StockVideoConfig holds stock footage search configuration (Pexels).
type StockVideoConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// VideoHostConfig holds the publishing target configuration.
type VideoHostConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BlobStoreConfig holds object storage mirroring configuration (MinIO).
// Mirroring is best-effort: failures are logged, never fatal.
type BlobStoreConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ProjectsBucket string `mapstructure:"projects_bucket"`
	ShortsBucket   string `mapstructure:"shorts_bucket"`
}

// ComposeConfig holds default webcam overlay geometry for composition.
// Projects may override any of these per-submission.
type ComposeConfig struct {
	WebcamX           int    `mapstructure:"webcam_x"`
	WebcamY           int    `mapstructure:"webcam_y"`
	WebcamSize        int    `mapstructure:"webcam_size"`
	WebcamShape       string `mapstructure:"webcam_shape"` // circle, rounded, rectangle
	BorderColor       string `mapstructure:"border_color"`
	BorderWidth       int    `mapstructure:"border_width"`
	ShortsMaxDuration int    `mapstructure:"shorts_max_duration"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with VIDARR_ and use underscores for nesting.
// Example: VIDARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vidarr")
		v.AddConfigPath("$HOME/.vidarr")
	}

	// Environment variable settings
	v.SetEnvPrefix("VIDARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_size", defaultMaxUploadBytes)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vidarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.projects_dir", "projects")
	v.SetDefault("storage.assets_dir", "assets")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Worker defaults
	v.SetDefault("worker.count", defaultWorkerCount)
	v.SetDefault("worker.poll_interval", defaultPollInterval)
	v.SetDefault("worker.lock_timeout", defaultLockTimeout)
	v.SetDefault("worker.job_timeout", defaultJobTimeout)
	v.SetDefault("worker.soft_timeout", defaultSoftTimeout)
	v.SetDefault("worker.job_retention", defaultJobRetention)
	v.SetDefault("worker.retry_attempts", defaultRetryAttempts)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")

	// Service defaults
	v.SetDefault("services.llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("services.llm.api_key", "")
	v.SetDefault("services.llm.model", "openai/gpt-4o-mini")
	v.SetDefault("services.llm.image_model", "google/gemini-3-pro-image-preview")
	v.SetDefault("services.llm.timeout", defaultHTTPTimeout)
	v.SetDefault("services.speech.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("services.speech.api_key", "")
	v.SetDefault("services.speech.model", "whisper-large-v3")
	v.SetDefault("services.speech.language", "fr")
	v.SetDefault("services.speech.timeout", defaultSpeechTimeout)
	v.SetDefault("services.stockvideo.base_url", "https://api.pexels.com")
	v.SetDefault("services.stockvideo.api_key", "")
	v.SetDefault("services.stockvideo.timeout", defaultHTTPTimeout)
	v.SetDefault("services.videohost.base_url", "")
	v.SetDefault("services.videohost.api_key", "")
	v.SetDefault("services.videohost.timeout", 10*time.Minute)

	// Blob store defaults
	v.SetDefault("blobstore.enabled", false)
	v.SetDefault("blobstore.endpoint", "localhost:9000")
	v.SetDefault("blobstore.access_key", "")
	v.SetDefault("blobstore.secret_key", "")
	v.SetDefault("blobstore.use_ssl", false)
	v.SetDefault("blobstore.projects_bucket", "projects")
	v.SetDefault("blobstore.shorts_bucket", "shorts")

	// Compose defaults
	v.SetDefault("compose.webcam_x", 1486)
	v.SetDefault("compose.webcam_y", 645)
	v.SetDefault("compose.webcam_size", 389)
	v.SetDefault("compose.webcam_shape", "circle")
	v.SetDefault("compose.border_color", "#FFB6C1")
	v.SetDefault("compose.border_width", 4)
	v.SetDefault("compose.shorts_max_duration", 30)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// Storage validation
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Worker validation
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be at least 1")
	}
	if c.Worker.SoftTimeout >= c.Worker.JobTimeout {
		return fmt.Errorf("worker.soft_timeout must be shorter than worker.job_timeout")
	}

	// Compose validation
	validShapes := map[string]bool{"circle": true, "rounded": true, "rectangle": true}
	if !validShapes[c.Compose.WebcamShape] {
		return fmt.Errorf("compose.webcam_shape must be one of: circle, rounded, rectangle")
	}

	// Blob store validation
	if c.BlobStore.Enabled {
		if c.BlobStore.Endpoint == "" {
			return fmt.Errorf("blobstore.endpoint is required when blobstore is enabled")
		}
		if c.BlobStore.AccessKey == "" || c.BlobStore.SecretKey == "" {
			return fmt.Errorf("blobstore credentials are required when blobstore is enabled")
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProjectsPath returns the full path to the projects directory.
func (c *StorageConfig) ProjectsPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.ProjectsDir)
}

// AssetsPath returns the full path to the static assets directory.
func (c *StorageConfig) AssetsPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.AssetsDir)
}
