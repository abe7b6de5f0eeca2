package service

import (
	"context"
	"encoding/json"

	"github.com/xxxsen/mailextract/internal/extraction"
	"github.com/xxxsen/mailextract/internal/model"
	"github.com/xxxsen/mailextract/internal/repo"
)

// EmailStore is the persistence the services need; *repo.EmailRepo
// satisfies it.
type EmailStore interface {
	Create(ctx context.Context, rec *model.EmailExtraction) error
	GetByExtFileID(ctx context.Context, extFileID string) (*model.EmailExtraction, error)
	List(ctx context.Context, limit, offset int) ([]model.EmailExtraction, error)
	Count(ctx context.Context) (int64, error)
	ListUnembedded(ctx context.Context, modelName string, limit int) ([]model.EmailExtraction, error)
	EmbeddedExtFileIDs(ctx context.Context, modelName string) (map[string]struct{}, error)
	UpsertUploaded(ctx context.Context, rec *model.EmailExtraction) error
	UpsertEmbedding(ctx context.Context, rec *model.EmailExtraction) error
	ApplyExtraction(ctx context.Context, extFileID string, fields *model.ExtractionFields, mtime int64) (bool, error)
	SearchSimilar(ctx context.Context, q repo.SimilarityQuery) ([]model.SimilarEmail, error)
	EmbeddingColumn(ctx context.Context) (*model.EmbeddingColumn, error)
}

// ExtractionAPI is the remote extraction provider; *extraction.Client
// satisfies it.
type ExtractionAPI interface {
	UploadAssets(ctx context.Context, project, fileType string, docs []extraction.Document) ([]extraction.UploadedAsset, error)
	AssetStatus(ctx context.Context, ids []string) (map[string]extraction.Status, error)
	InitiateTransform(ctx context.Context, project string, params extraction.TransformParams) (string, error)
	TransformStatus(ctx context.Context, ids []string) (map[string]extraction.Status, error)
	TransformResults(ctx context.Context, transformID string) ([]extraction.Result, []json.RawMessage, error)
}

var (
	_ EmailStore    = (*repo.EmailRepo)(nil)
	_ ExtractionAPI = (*extraction.Client)(nil)
)
