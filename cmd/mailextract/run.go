package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mailextract/internal/extraction"
	"github.com/xxxsen/mailextract/internal/handler"
	"github.com/xxxsen/mailextract/internal/job"
	"github.com/xxxsen/mailextract/internal/middleware"
	"github.com/xxxsen/mailextract/internal/schedule"
	"github.com/xxxsen/mailextract/internal/service"
)

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the extraction api server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfig(configPath); err != nil {
				return err
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(ctx, a)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (json or yaml)")
	return cmd
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := logutil.GetLogger(ctx)
	logger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("source", cfg.Source.Type),
		zap.String("project", cfg.Extraction.ProjectName),
	)
	if cfg.Extraction.APIKey == "" {
		logger.Warn("extraction api key is empty", zap.String("env", cfg.Extraction.APIKeyEnv))
	}

	ex := cfg.Extraction
	client := extraction.NewClient(ex.BaseURL, ex.APIKey,
		extraction.WithHTTPClient(&http.Client{Timeout: ex.RequestTimeout()}))
	validator, err := extraction.NewResultValidator(extraction.EmailTransformParams())
	if err != nil {
		return fmt.Errorf("build result schema: %w", err)
	}
	pending := service.NewPendingStore(ex.PendingSize, ex.PendingTTL())
	extractionService := service.NewExtractionService(client, a.emails, a.docs, pending, validator, service.ExtractionOptions{
		Project:       ex.ProjectName,
		FileType:      ex.FileType,
		BatchSize:     ex.BatchSize,
		PollInterval:  ex.PollInterval(),
		RetryInterval: ex.RetryInterval(),
		MaxRetries:    ex.MaxRetries,
		PollTimeout:   ex.PollTimeout(),
		TrimHeader:    cfg.Embedding.TrimHeader,
		HeaderMarker:  cfg.Embedding.HeaderMarker,
	})
	searchService := service.NewSearchService(a.embeddings, a.emails, cfg.Search.Metric, cfg.Search.DefaultLimit, cfg.Search.MaxLimit)

	deps := handler.RouterDeps{
		Emails:     handler.NewEmailHandler(service.NewEmailService(a.emails, cfg.Embedding.Dimension)),
		Extraction: handler.NewExtractionHandler(extractionService),
		Embeddings: handler.NewEmbeddingHandler(a.embeddings, searchService),
		Export:     handler.NewExportHandler(service.NewExportService(a.emails)),
		Files:      handler.NewFileHandler(a.docs, cfg.MaxUploadBytes),
		JWTSecret:  []byte(cfg.JWTSecret),
		RateLimit:  time.Duration(cfg.RateLimitSeconds) * time.Second,
	}
	if cfg.JWTSecret == "" {
		logger.Warn("jwt_secret is empty, api auth disabled")
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingSyncJob(a.embeddings, cfg.Schedule.EmbeddingSyncBatch), cfg.Schedule.EmbeddingSyncSpec); err != nil {
		return err
	}
	if cfg.Embedding.DBCache {
		if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cache, cfg.Schedule.CacheMaxAgeDays), cfg.Schedule.CacheCleanupSpec); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logger.Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}
