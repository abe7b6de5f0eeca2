package job

import (
	"context"
	"errors"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
	"github.com/xxxsen/mailextract/internal/service"
)

// EmbeddingSyncJob embeds records that were stored without a vector, such
// as uploads that never went through the embed route.
type EmbeddingSyncJob struct {
	embeddings *service.EmbeddingService
	batch      int
}

func NewEmbeddingSyncJob(embeddings *service.EmbeddingService, batch int) *EmbeddingSyncJob {
	return &EmbeddingSyncJob{embeddings: embeddings, batch: batch}
}

func (j *EmbeddingSyncJob) Name() string {
	return "embedding_sync"
}

func (j *EmbeddingSyncJob) Run(ctx context.Context) error {
	if j.embeddings == nil {
		return nil
	}
	report, err := j.embeddings.EmbedPending(ctx, j.batch)
	if errors.Is(err, appErr.ErrUnavailable) {
		return nil
	}
	if err != nil {
		return err
	}
	if report.Total > 0 {
		logutil.GetLogger(ctx).Info("pending embeddings processed",
			zap.Int("total", report.Total),
			zap.Int("embedded", len(report.Embedded)),
			zap.Int("failed", len(report.Failed)))
	}
	return nil
}
