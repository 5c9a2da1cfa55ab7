package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/remoteprint/internal/api"
	"github.com/orrn/remoteprint/internal/api/handlers"
	"github.com/orrn/remoteprint/internal/api/middleware"
	"github.com/orrn/remoteprint/internal/archive"
	"github.com/orrn/remoteprint/internal/backend"
	"github.com/orrn/remoteprint/internal/config"
	"github.com/orrn/remoteprint/internal/core"
	"github.com/orrn/remoteprint/internal/db"
	"github.com/orrn/remoteprint/internal/directory"
	"github.com/orrn/remoteprint/internal/logger"
	"github.com/orrn/remoteprint/internal/storage"
	"github.com/orrn/remoteprint/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("remoteprint stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	client, err := backend.NewClient(cfg.Backend, backend.WithLogger(log.Named("backend")))
	if err != nil {
		return err
	}

	disks, err := storage.FromConfig(cfg.Storage, log.Named("storage"))
	if err != nil {
		return err
	}

	sender := webhook.NewSender(cfg.Webhooks, webhook.WithLogger(log.Named("webhook")))
	sender.Start()
	defer sender.Stop()

	manager := directory.NewManager(db.GetDB(), cfg.Printers,
		directory.WithStatusSource(client),
		directory.WithNotifier(sender),
		directory.WithLogger(log.Named("directory")),
	)

	var printers core.PrinterDirectory = manager
	if cfg.Redis.Enabled {
		rdb, err := directory.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()

		cache := directory.NewCache(manager, rdb, cfg.Printers.CacheTTL,
			directory.WithCacheLogger(log.Named("printer-cache")))
		manager.AddInvalidator(cache)
		printers = cache
	}

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to load printers: %w", err)
	}
	defer manager.Stop()

	defaults, err := core.OptionsFromMap(cfg.Jobs.DefaultOptions)
	if err != nil {
		return fmt.Errorf("invalid default job options: %w", err)
	}
	service := core.NewService(printers, disks, client,
		core.WithDefaultOptions(defaults),
		core.WithDefaultSource(cfg.Jobs.DefaultSource),
		core.WithJobPath(cfg.Backend.JobPath),
		core.WithLogger(log.Named("jobs")),
	)

	var archives *handlers.ArchiveHandler
	if cfg.Archive.Enabled {
		archiver, err := archive.NewArchiver(db.GetDB(), cfg.Archive, archive.WithLogger(log.Named("archive")))
		if err != nil {
			return err
		}
		archiver.Start()
		defer archiver.Stop()
		archives = handlers.NewArchiveHandler(archiver)
	}

	auth, err := middleware.NewAuthMiddleware(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Handlers{
		Auth:     auth,
		Jobs:     handlers.NewJobHandler(service, sender),
		Printers: handlers.NewPrinterHandler(manager),
		Webhooks: handlers.NewWebhookHandler(sender),
		Archives: archives,
		Settings: handlers.NewSettingsHandler(cfg),
		DB:       db.GetDB(),
	}, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited gracefully")
	return nil
}
