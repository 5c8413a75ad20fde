package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/vedit/internal/api"
	"github.com/therealutkarshpriyadarshi/vedit/internal/cache"
	"github.com/therealutkarshpriyadarshi/vedit/internal/config"
	"github.com/therealutkarshpriyadarshi/vedit/internal/database"
	"github.com/therealutkarshpriyadarshi/vedit/internal/export"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/internal/middleware"
	"github.com/therealutkarshpriyadarshi/vedit/internal/queue"
	"github.com/therealutkarshpriyadarshi/vedit/internal/storage"
	"github.com/therealutkarshpriyadarshi/vedit/internal/timeline"
	"github.com/therealutkarshpriyadarshi/vedit/internal/tracing"
	"github.com/therealutkarshpriyadarshi/vedit/internal/transcoder"
	"github.com/therealutkarshpriyadarshi/vedit/internal/upload"
	"github.com/therealutkarshpriyadarshi/vedit/internal/webhook"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml (defaults and VEDIT_* env when empty)")
	printToken := flag.String("print-token", "", "print an API token for the given client id and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize JWT secret from config
	middleware.SetJWTSecret(cfg.Server.AuthSecret)
	if *printToken != "" {
		token, err := middleware.GenerateToken(*printToken, cfg.Server.TokenTTL)
		if err != nil {
			log.Fatalf("Failed to generate token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	if middleware.AuthEnabled() {
		logger.Info("API token authentication enabled")
	}

	tracer, err := tracing.Setup(cfg.Tracing.Enabled, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer tracer.Close()

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("Metrics server stopped", err)
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	startup, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	checks := map[string]api.HealthChecker{}
	var observers []export.Observer

	// Optional object storage mirror of finished exports
	var mirror *storage.Mirror
	if cfg.Storage.Enabled {
		mirror, err = storage.NewMirror(startup, cfg.Storage, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize storage mirror: %v", err)
		}
		observers = append(observers, mirror)
	}

	// Optional Redis mirror of job state
	var jobCache *cache.Cache
	if cfg.Redis.Enabled {
		jobCache, err = cache.NewCache(cfg.Redis, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer jobCache.Close()
		observers = append(observers, jobCache)
		checks["redis"] = jobCache.Ping
	}

	// Optional lifecycle events
	if cfg.Queue.Enabled {
		publisher, err := queue.New(cfg.Queue, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to queue: %v", err)
		}
		defer publisher.Close()
		observers = append(observers, publisher)
	}

	// Optional webhook notifications
	var notifier *webhook.Notifier
	if cfg.Webhook.Enabled {
		notifier, err = webhook.NewNotifier(cfg.Webhook, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize webhooks: %v", err)
		}
		observers = append(observers, notifier)
	}

	// Optional export history
	var history api.History
	if cfg.Database.Enabled {
		db, err := database.New(cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Migrate(startup); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		repo := database.NewRepository(db, logger)
		observers = append(observers, repo)
		history = repo
		checks["database"] = db.Health
	}

	media := timeline.NewMediaLibrary()
	builder := export.NewBuilder(cfg.Export.AppName, models.ExportOptions{
		Resolution: cfg.Export.DefaultResolution,
		FPS:        cfg.Export.DefaultFPS,
		Format:     cfg.Export.DefaultFormat,
		Bitrate:    cfg.Export.DefaultBitrate,
		CRF:        cfg.Export.DefaultCRF,
		Preset:     cfg.Export.DefaultPreset,
		Codec:      cfg.Export.DefaultCodec,
	})

	orchestrator, err := export.NewOrchestrator(export.Deps{
		Transcoder:  transcoder.NewService(cfg.Transcoder, logger),
		Persistence: storage.NewDisk(cfg.Export.OutputDir, logger),
		Handles:     media,
		Builder:     builder,
		Logger:      logger,
		Observers:   observers,
		Config: export.Config{
			DiskSafetyMarginBytes:      uint64(cfg.Export.DiskSafetyMarginBytes),
			LogRingSize:                cfg.Export.LogRingSize,
			ValidationToleranceSeconds: cfg.Export.ValidationToleranceSeconds,
		},
	})
	if err != nil {
		logger.Fatalf("Failed to create export orchestrator: %v", err)
	}
	if jobCache != nil {
		defer orchestrator.Subscribe(jobCache.OnProgress)()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := middleware.NewRateLimiter(cfg.Server.EnqueueRate, cfg.Server.EnqueueBurst)
	go limiter.Cleanup(ctx, time.Minute)

	var uploads *upload.Service
	if cfg.Upload.Enabled {
		uploads = upload.NewService(cfg.Upload.Dir, cfg.Upload.PartSize, cfg.Upload.Expiration, logger)
		go uploads.CleanupExpired(ctx, time.Hour)
	}

	server, err := api.New(api.Deps{
		Model:        timeline.New(timeline.WithLogger(logger)),
		Media:        media,
		Orchestrator: orchestrator,
		History:      history,
		Uploads:      uploads,
		Limiter:      limiter,
		Logger:       logger,
		Checks:       checks,
	})
	if err != nil {
		logger.Fatalf("Failed to create API: %v", err)
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		// Progress streams and waits end when ctx is cancelled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}

	// Interrupts a running export and flushes observer deliveries.
	orchestrator.Close()
	if mirror != nil {
		if err := mirror.Wait(shutdownCtx); err != nil {
			logger.WarnWithErr("Uploads still running at shutdown", err)
		}
	}

	if notifier != nil {
		if err := notifier.Wait(shutdownCtx); err != nil {
			logger.WarnWithErr("Webhook deliveries still running at shutdown", err)
		}
		notifier.Close()
	}

	logger.Info("Server stopped")
}
