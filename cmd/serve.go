package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sriramreddyM/coco-annotator/cmd/cmdutil"
	"github.com/sriramreddyM/coco-annotator/internal/repository"
	"github.com/sriramreddyM/coco-annotator/internal/server"
	"github.com/sriramreddyM/coco-annotator/internal/services/annotation"
	"github.com/sriramreddyM/coco-annotator/internal/services/images"
	"github.com/sriramreddyM/coco-annotator/internal/services/imaging"
	"github.com/sriramreddyM/coco-annotator/internal/services/users"
	"github.com/sriramreddyM/coco-annotator/internal/telemetry"
)

// sessionSweepInterval is how often expired cookie sessions are purged.
const sessionSweepInterval = 15 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the annotator API server",
	Long:  `Starts the HTTP server exposing the user and image namespaces under the API prefix.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()

		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			return fmt.Errorf("failed to create server metrics: %w", err)
		}
		dbMetrics, err := telemetry.NewDatabaseMetrics()
		if err != nil {
			return fmt.Errorf("failed to create database metrics: %w", err)
		}
		authMetrics, err := telemetry.NewAuthMetrics()
		if err != nil {
			return fmt.Errorf("failed to create auth metrics: %w", err)
		}
		renderMetrics, err := telemetry.NewRenderMetrics()
		if err != nil {
			return fmt.Errorf("failed to create render metrics: %w", err)
		}

		// Connect to database and build the session resolver
		bundle, err := cmdutil.NewIAMServiceBundle(cfg, cmdutil.IAMServiceOptions{
			DatabaseMetrics: dbMetrics,
			AuthMetrics:     authMetrics,
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		defer bundle.Close()
		logger.Info("connected to database", "anonymous_access", cfg.AnonymousAccess, "login_disabled", cfg.LoginDisabled)

		// Initialize repositories
		db := bundle.DB
		imageRepo := repository.NewBunImageRepository(db)
		datasetRepo := repository.NewBunDatasetRepository(db)
		categoryRepo := repository.NewBunCategoryRepository(db)
		annotationRepo := repository.NewBunAnnotationRepository(db)

		renderCache, closeCache, err := newRenderCache(ctx)
		if err != nil {
			return err
		}
		defer closeCache()
		renderer := imaging.NewRenderer(renderCache, imaging.Limits{
			ThumbnailSize: cfg.Thumbnail.MaxSize,
			MaxPixels:     cfg.MaxImagePixels,
		}, renderMetrics, logger)

		// Initialize services
		userService := users.NewService(bundle.Users, bundle.Service, users.Config{
			AllowRegistration: cfg.AllowRegistration,
			LiveWindow:        cfg.LiveWindow,
		}, logger)
		imageService := images.NewService(images.Dependencies{
			Images:    imageRepo,
			Datasets:  datasetRepo,
			Users:     bundle.Users,
			IAM:       bundle.Service,
			Renderer:  renderer,
			Logger:    logger,
			MaxPixels: cfg.MaxImagePixels,
		})
		annotationService := annotation.NewService(imageService, imageRepo, annotationRepo, categoryRepo, bundle.Service, logger)

		corsOpts := server.CORSOptionsFor(cfg.CORS.AllowedOrigins)
		handler, err := server.NewH2CHandler(server.RouterOptions{
			IAMService:    bundle.Service,
			Users:         userService,
			Images:        imageService,
			Annotations:   annotationService,
			APIPrefix:     cfg.APIPrefix,
			LoginDisabled: cfg.LoginDisabled,
			Logger:        logger,
			ServerMetrics: serverMetrics,
			CORSOptions:   &corsOpts,
		})
		if err != nil {
			return fmt.Errorf("failed to build router: %w", err)
		}

		sweepCtx, cancelSweep := context.WithCancel(ctx)
		defer cancelSweep()
		go sweepSessions(sweepCtx, bundle.Sessions)

		// Create HTTP server
		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", cfg.ServerAddr, "api_prefix", cfg.APIPrefix)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down gracefully", "signal", sig.String())

			// Graceful shutdown with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logger.Info("server stopped")
			return nil
		}
	},
}

// newRenderCache selects the shared redis cache when configured, otherwise an
// in-process LRU.
func newRenderCache(ctx context.Context) (imaging.Cache, func(), error) {
	if cfg.Thumbnail.RedisURL != "" {
		cache, err := imaging.NewRedisCache(ctx, cfg.Thumbnail.RedisURL, cfg.Thumbnail.CacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect render cache: %w", err)
		}
		logger.Info("render cache", "backend", "redis", "ttl", cfg.Thumbnail.CacheTTL)
		return cache, func() { _ = cache.Close() }, nil
	}

	cache, err := imaging.NewLRUCache(cfg.Thumbnail.CacheSize)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("render cache", "backend", "lru", "size", cfg.Thumbnail.CacheSize)
	return cache, func() {}, nil
}

func sweepSessions(ctx context.Context, sessions repository.SessionRepository) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx, time.Now())
			if err != nil {
				logger.Error("expired session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions removed", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
