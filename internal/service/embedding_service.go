package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailextract/internal/ai"
	"github.com/xxxsen/mailextract/internal/extraction"
	"github.com/xxxsen/mailextract/internal/model"
	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
	"github.com/xxxsen/mailextract/internal/pkg/timeutil"
	"github.com/xxxsen/mailextract/internal/source"
)

const (
	EmbedModeAll     = "all"
	EmbedModeMissing = "missing"
)

type EmbedReport struct {
	Mode     string   `json:"mode"`
	Total    int      `json:"total"`
	Embedded []string `json:"embedded"`
	Skipped  []string `json:"skipped"`
	Failed   []string `json:"failed"`
}

type EmbeddingService struct {
	embedder     ai.IEmbedder
	emails       EmailStore
	docs         source.Source
	dimension    int
	trimHeader   bool
	headerMarker string
}

func NewEmbeddingService(embedder ai.IEmbedder, emails EmailStore, docs source.Source, dimension int, trimHeader bool, headerMarker string) *EmbeddingService {
	return &EmbeddingService{
		embedder:     embedder,
		emails:       emails,
		docs:         docs,
		dimension:    dimension,
		trimHeader:   trimHeader,
		headerMarker: headerMarker,
	}
}

func newEmbedReport(mode string) *EmbedReport {
	return &EmbedReport{Mode: mode, Embedded: []string{}, Skipped: []string{}, Failed: []string{}}
}

// embed calls the provider and enforces the configured dimension. It also
// returns the model that produced the vector.
func (s *EmbeddingService) embed(ctx context.Context, text, taskType string) ([]float32, string, error) {
	if s.embedder == nil {
		return nil, "", appErr.ErrUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("empty text: %w", appErr.ErrInvalid)
	}
	vec, modelName, err := ai.EmbedWithModel(ctx, s.embedder, text, taskType)
	if err != nil {
		return nil, "", err
	}
	if len(vec) != s.dimension {
		return nil, "", fmt.Errorf("embedding dimension %d, want %d", len(vec), s.dimension)
	}
	return vec, modelName, nil
}

// EmbedQuery embeds search text and names the model used.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, string, error) {
	return s.embed(ctx, text, ai.TaskRetrievalQuery)
}

func (s *EmbeddingService) primaryModel() string {
	if s.embedder == nil {
		return ""
	}
	return ai.PrimaryModel(s.embedder)
}

// GenerateAll embeds the documents of the source. In missing mode documents
// whose record already carries a vector of the primary model are skipped. A provider failure only
// skips the document it happened on.
func (s *EmbeddingService) GenerateAll(ctx context.Context, mode string) (*EmbedReport, error) {
	switch mode {
	case "":
		mode = EmbedModeAll
	case EmbedModeAll, EmbedModeMissing:
	default:
		return nil, fmt.Errorf("unknown embed mode %q: %w", mode, appErr.ErrInvalid)
	}
	if s.embedder == nil {
		return nil, appErr.ErrUnavailable
	}
	files, err := source.ReadAll(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	existing := map[string]struct{}{}
	if mode == EmbedModeMissing {
		if existing, err = s.emails.EmbeddedExtFileIDs(ctx, s.primaryModel()); err != nil {
			return nil, fmt.Errorf("load embedded ids: %w", err)
		}
	}

	logger := logutil.GetLogger(ctx).With(zap.String("mode", mode))
	report := newEmbedReport(mode)
	report.Total = len(files)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		extID := extraction.ExtIDFromName(f.Name)
		if _, ok := existing[extID]; ok {
			report.Skipped = append(report.Skipped, extID)
			continue
		}
		full := string(f.Content)
		payload := EmailPayload(full, s.trimHeader, s.headerMarker)
		vec, modelName, err := s.embed(ctx, payload, ai.TaskRetrievalDocument)
		if err != nil {
			logger.Warn("embed document failed, skipped", zap.String("ext_file_id", extID), zap.Error(err))
			report.Failed = append(report.Failed, extID)
			continue
		}
		now := timeutil.NowUnix()
		if err := s.emails.UpsertEmbedding(ctx, &model.EmailExtraction{
			ExtFileID:      extID,
			ExtFileName:    f.Name,
			EmailContent:   payload,
			FullEmail:      full,
			Embedding:      vec,
			EmbeddingModel: modelName,
			Ctime:          now,
			Mtime:          now,
		}); err != nil {
			return nil, fmt.Errorf("store embedding for %s: %w", extID, err)
		}
		report.Embedded = append(report.Embedded, extID)
	}
	logger.Info("embedding generation finished",
		zap.Int("total", report.Total),
		zap.Int("embedded", len(report.Embedded)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// EmbedPending embeds up to limit stored records that have no vector yet,
// then records whose vector came from a fallback model.
func (s *EmbeddingService) EmbedPending(ctx context.Context, limit int) (*EmbedReport, error) {
	if s.embedder == nil {
		return nil, appErr.ErrUnavailable
	}
	recs, err := s.emails.ListUnembedded(ctx, s.primaryModel(), limit)
	if err != nil {
		return nil, err
	}
	report := newEmbedReport("pending")
	report.Total = len(recs)
	for i := range recs {
		rec := recs[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := rec.EmailContent
		if strings.TrimSpace(text) == "" {
			text = EmailPayload(rec.FullEmail, s.trimHeader, s.headerMarker)
		}
		vec, modelName, err := s.embed(ctx, text, ai.TaskRetrievalDocument)
		if err != nil {
			logutil.GetLogger(ctx).Warn("embed pending record failed", zap.String("ext_file_id", rec.ExtFileID), zap.Error(err))
			report.Failed = append(report.Failed, rec.ExtFileID)
			continue
		}
		if len(rec.Embedding) > 0 && rec.EmbeddingModel == modelName {
			report.Skipped = append(report.Skipped, rec.ExtFileID)
			continue
		}
		rec.EmailContent = text
		rec.Embedding = vec
		rec.EmbeddingModel = modelName
		rec.Mtime = timeutil.NowUnix()
		if err := s.emails.UpsertEmbedding(ctx, &rec); err != nil {
			return nil, fmt.Errorf("store embedding for %s: %w", rec.ExtFileID, err)
		}
		report.Embedded = append(report.Embedded, rec.ExtFileID)
	}
	return report, nil
}

// VerifyDimension checks that the embedding column can hold vectors of the
// configured size.
func (s *EmbeddingService) VerifyDimension(ctx context.Context) (*model.EmbeddingColumn, error) {
	col, err := s.emails.EmbeddingColumn(ctx)
	if err != nil {
		return nil, err
	}
	if col.Dimension > 0 && col.Dimension != s.dimension {
		return col, fmt.Errorf("embedding column holds %d dimensions, configured %d", col.Dimension, s.dimension)
	}
	return col, nil
}
