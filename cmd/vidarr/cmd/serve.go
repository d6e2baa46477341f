package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vibeacademy/vidarr/internal/config"
	"github.com/vibeacademy/vidarr/internal/database"
	"github.com/vibeacademy/vidarr/internal/database/migrations"
	"github.com/vibeacademy/vidarr/internal/ffmpeg"
	internalhttp "github.com/vibeacademy/vidarr/internal/http"
	"github.com/vibeacademy/vidarr/internal/http/handlers"
	"github.com/vibeacademy/vidarr/internal/httpclient"
	"github.com/vibeacademy/vidarr/internal/pipeline"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/repository"
	"github.com/vibeacademy/vidarr/internal/scheduler"
	"github.com/vibeacademy/vidarr/internal/service"
	"github.com/vibeacademy/vidarr/internal/services/blobstore"
	"github.com/vibeacademy/vidarr/internal/services/llm"
	"github.com/vibeacademy/vidarr/internal/services/speech"
	"github.com/vibeacademy/vidarr/internal/services/stockvideo"
	"github.com/vibeacademy/vidarr/internal/services/videohost"
	"github.com/vibeacademy/vidarr/internal/startup"
	"github.com/vibeacademy/vidarr/internal/storage"
	"github.com/vibeacademy/vidarr/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vidarr server",
	Long: `Start the vidarr HTTP server, job workers, and maintenance scheduler.

The server provides:
- REST API for creating projects, uploading recordings, and driving the pipeline
- Job queue visibility and runner status
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "vidarr.db", "Database DSN (file path for sqlite)")
	serveCmd.Flags().String("data-dir", "./data", "Base directory for project artifacts")

	// Worker flags
	serveCmd.Flags().Int("workers", 2, "Number of concurrent stage workers")

	// Bind flags to viper
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	viper.BindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
	viper.BindPFlag("worker.count", serveCmd.Flags().Lookup("workers"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Repositories
	projectRepo := repository.NewProjectRepository(db.DB)
	jobRepo := repository.NewJobRepository(db.DB)

	// Artifact storage
	store, err := storage.NewProjectStore(cfg.Storage.ProjectsPath())
	if err != nil {
		return fmt.Errorf("initializing project store: %w", err)
	}

	// Sweep scratch left behind by crashed workers.
	if removed, err := startup.CleanupTempDirs(logger, store); err != nil {
		logger.Warn("temp directory sweep failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("cleaned orphaned temp entries on startup", slog.Int("removed", removed))
	}

	// Encoder binaries
	bins, err := locateBinaries(ctx, cfg.FFmpeg)
	if err != nil {
		return fmt.Errorf("locating encoder binaries: %w", err)
	}
	logger.Info("encoder binaries resolved",
		slog.String("ffmpeg", bins.FFmpeg),
		slog.String("ffprobe", bins.FFprobe),
		slog.String("version", bins.Version),
	)

	// External services
	llmClient := llm.New(serviceHTTPClient(cfg.Services.LLM.Timeout, logger), cfg.Services.LLM.APIKey).
		WithModels(cfg.Services.LLM.Model, cfg.Services.LLM.ImageModel)
	if cfg.Services.LLM.BaseURL != "" {
		llmClient = llmClient.WithBaseURL(cfg.Services.LLM.BaseURL)
	}

	speechClient := speech.New(serviceHTTPClient(cfg.Services.Speech.Timeout, logger), cfg.Services.Speech.APIKey).
		WithModel(cfg.Services.Speech.Model).
		WithTimeout(cfg.Services.Speech.Timeout)
	if cfg.Services.Speech.BaseURL != "" {
		speechClient = speechClient.WithBaseURL(cfg.Services.Speech.BaseURL)
	}

	stockClient := stockvideo.New(serviceHTTPClient(cfg.Services.StockVideo.Timeout, logger), cfg.Services.StockVideo.APIKey)
	if cfg.Services.StockVideo.BaseURL != "" {
		stockClient = stockClient.WithBaseURL(cfg.Services.StockVideo.BaseURL)
	}

	hostClient := videohost.New(serviceHTTPClient(cfg.Services.VideoHost.Timeout, logger), cfg.Services.VideoHost.APIKey)
	if cfg.Services.VideoHost.BaseURL != "" {
		hostClient = hostClient.WithUploadBaseURL(cfg.Services.VideoHost.BaseURL)
	}

	// Blob store mirroring is optional; a dead object store only costs the
	// off-box copies.
	var blob *blobstore.Store
	if cfg.BlobStore.Enabled {
		blob, err = blobstore.New(ctx, blobstore.Config{
			Endpoint:       cfg.BlobStore.Endpoint,
			AccessKey:      cfg.BlobStore.AccessKey,
			SecretKey:      cfg.BlobStore.SecretKey,
			UseSSL:         cfg.BlobStore.UseSSL,
			ProjectsBucket: cfg.BlobStore.ProjectsBucket,
			ShortsBucket:   cfg.BlobStore.ShortsBucket,
		}, logger)
		if err != nil {
			return fmt.Errorf("initializing blob store: %w", err)
		}
	}

	// Pipeline
	deps := &core.Dependencies{
		Projects:  projectRepo,
		Store:     store,
		FFmpeg:    bins,
		Prober:    ffmpeg.NewProber(bins.FFprobe),
		Silence:   ffmpeg.NewSilenceDetector(bins.FFmpeg),
		LLM:       llmClient,
		Speech:    speechClient,
		Stock:     stockClient,
		Host:      hostClient,
		Images:    service.NewImageConverter(),
		Compose:   cfg.Compose,
		Language:  cfg.Services.Speech.Language,
		AssetsDir: cfg.Storage.AssetsPath(),
		Logger:    logger,
	}
	if blob != nil {
		deps.Blob = blob
	}

	factory := pipeline.NewDefaultFactory(deps)
	orchestrator := core.NewOrchestrator(factory, projectRepo, store, logger).
		WithSoftTimeout(cfg.Worker.SoftTimeout)

	// Scheduler
	executor := scheduler.NewExecutor(orchestrator, jobRepo, projectRepo).WithLogger(logger)
	runner := scheduler.NewRunner(jobRepo, executor).
		WithLogger(logger).
		WithConfig(scheduler.RunnerConfig{
			WorkerCount:  cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
			JobTimeout:   cfg.Worker.JobTimeout,
		})
	maintenance := scheduler.NewMaintenance(jobRepo).
		WithLogger(logger).
		WithConfig(scheduler.MaintenanceConfig{
			Retention:   cfg.Worker.JobRetention,
			LockTimeout: cfg.Worker.LockTimeout,
		})

	// Services
	projectService := service.NewProjectService(projectRepo, jobRepo, store, orchestrator).
		WithLogger(logger).
		WithRetryAttempts(cfg.Worker.RetryAttempts)
	if blob != nil {
		projectService = projectService.WithBlobStore(blob)
	}

	// HTTP server
	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverConfig.CORSOrigins = cfg.Server.CORSOrigins
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	handlers.NewHealthHandler(version.Version).WithDB(db.DB).Register(server.API())
	handlers.NewProjectHandler(projectService).Register(server.API())
	handlers.NewJobHandler(jobRepo, runner).Register(server.API())
	handlers.NewUploadHandler(projectService, store, logger).
		WithMaxSize(cfg.Server.MaxUploadSize.Bytes()).
		Register(server.Router())

	// Workers and maintenance
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("starting job runner: %w", err)
	}
	defer runner.Stop()

	if err := maintenance.Start(ctx); err != nil {
		return fmt.Errorf("starting maintenance scheduler: %w", err)
	}
	defer maintenance.Stop()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting vidarr server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Int("workers", cfg.Worker.Count),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// locateBinaries resolves ffmpeg and ffprobe, preferring explicit config
// paths over environment and PATH lookup.
func locateBinaries(ctx context.Context, cfg config.FFmpegConfig) (*ffmpeg.Binaries, error) {
	bins, err := ffmpeg.Locate(ctx)
	if err != nil {
		if cfg.BinaryPath == "" || cfg.ProbePath == "" {
			return nil, err
		}
		bins = &ffmpeg.Binaries{}
	}
	if cfg.BinaryPath != "" {
		bins.FFmpeg = cfg.BinaryPath
	}
	if cfg.ProbePath != "" {
		bins.FFprobe = cfg.ProbePath
	}
	return bins, nil
}

// serviceHTTPClient builds a resilient HTTP client for one external service.
func serviceHTTPClient(timeout time.Duration, logger *slog.Logger) *httpclient.Client {
	clientCfg := httpclient.DefaultConfig()
	if timeout > 0 {
		clientCfg.Timeout = timeout
	}
	clientCfg.UserAgent = version.UserAgent()
	clientCfg.Logger = logger
	return httpclient.New(clientCfg)
}
