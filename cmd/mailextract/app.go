package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailextract/internal/ai"
	"github.com/xxxsen/mailextract/internal/config"
	"github.com/xxxsen/mailextract/internal/db"
	"github.com/xxxsen/mailextract/internal/embedcache"
	"github.com/xxxsen/mailextract/internal/repo"
	"github.com/xxxsen/mailextract/internal/service"
	"github.com/xxxsen/mailextract/internal/source"
)

// app holds what every command needs: storage, the document source and the
// embedding pipeline.
type app struct {
	cfg        *config.Config
	db         *sql.DB
	emails     *repo.EmailRepo
	cache      *repo.EmbeddingCacheRepo
	docs       source.Source
	embeddings *service.EmbeddingService
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.EnsureVector(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	docs, err := source.New(cfg.Source)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init document source: %w", err)
	}

	a := &app{
		cfg:    cfg,
		db:     conn,
		emails: repo.NewEmailRepo(conn),
		cache:  repo.NewEmbeddingCacheRepo(conn),
		docs:   docs,
	}
	embedder, err := a.buildEmbedder()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	em := cfg.Embedding
	a.embeddings = service.NewEmbeddingService(embedder, a.emails, docs, em.Dimension, em.TrimHeader, em.HeaderMarker)
	col, err := a.embeddings.VerifyDimension(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("verify embedding column: %w", err)
	}
	logutil.GetLogger(ctx).Info("embedding column checked",
		zap.String("udt_name", col.UDTName), zap.Int("dimension", col.Dimension))
	return a, nil
}

// buildEmbedder chains the configured providers (first success wins). Each
// provider is cached on its own so a cached vector always belongs to the
// model named in its key.
func (a *app) buildEmbedder() (ai.IEmbedder, error) {
	em := a.cfg.Embedding
	entries := make([]ai.EmbedderEntry, 0, len(em.Providers))
	for _, p := range em.Providers {
		args := p.Data
		if args == nil {
			args = map[string]interface{}{}
		}
		provider, err := ai.NewEmbedProvider(p.Provider, args)
		if err != nil {
			return nil, fmt.Errorf("init embed provider %s: %w", p.Name, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     p.Name,
			Embedder: a.cachedEmbedder(ai.NewEmbedder(provider, p.Model, em.Dimension)),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)
	if embedder == nil {
		logutil.GetLogger(context.Background()).Warn("no embedding provider configured, embedding and search disabled")
		return nil, nil
	}
	return embedder, nil
}

func (a *app) cachedEmbedder(e ai.IEmbedder) ai.IEmbedder {
	em := a.cfg.Embedding
	e = ai.WithTimeout(e, time.Duration(em.TimeoutSec)*time.Second)
	if em.DBCache {
		e = embedcache.WithStore(e, a.cache)
	}
	return embedcache.WithLRU(e, em.CacheSize, time.Duration(em.CacheTTLSec)*time.Second)
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		logutil.GetLogger(context.Background()).Warn("close db failed", zap.Error(err))
	}
}
