package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailextract/internal/model"
	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
	"github.com/xxxsen/mailextract/internal/repo"
)

type SearchRequest struct {
	Query   string            `json:"query"`
	Limit   int               `json:"limit"`
	Filters map[string]string `json:"filters"`
}

type SearchService struct {
	embeddings   *EmbeddingService
	emails       EmailStore
	metric       string
	defaultLimit int
	maxLimit     int
}

func NewSearchService(embeddings *EmbeddingService, emails EmailStore, metric string, defaultLimit, maxLimit int) *SearchService {
	return &SearchService{
		embeddings:   embeddings,
		emails:       emails,
		metric:       metric,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

func (s *SearchService) limit(n int) int {
	if n <= 0 {
		return s.defaultLimit
	}
	if s.maxLimit > 0 && n > s.maxLimit {
		return s.maxLimit
	}
	return n
}

// Search ranks records by vector distance to the query text. Filters are
// exact matches applied before ranking. Only vectors of the model that
// embedded the query are ranked.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) ([]model.SimilarEmail, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", appErr.ErrInvalid)
	}
	vec, modelName, err := s.embeddings.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.emails.SearchSimilar(ctx, repo.SimilarityQuery{
		Vector:  vec,
		Model:   modelName,
		Metric:  s.metric,
		Filters: req.Filters,
		Limit:   s.limit(req.Limit),
	})
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].Embedding = nil
	}
	logutil.GetLogger(ctx).Debug("similarity search done",
		zap.Int("hits", len(hits)), zap.Int("filters", len(req.Filters)))
	return hits, nil
}
