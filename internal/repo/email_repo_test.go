package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mailextract/internal/model"
	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
	"github.com/xxxsen/mailextract/internal/pkg/timeutil"
	"github.com/xxxsen/mailextract/internal/repo"
	"github.com/xxxsen/mailextract/internal/testutil"
)

func vec(seed float32) []float32 {
	out := make([]float32, 256)
	for i := range out {
		out[i] = seed + float32(i)/1000
	}
	return out
}

func boolPtr(v bool) *bool { return &v }

func TestEmailRepoCreateAndGet(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	emails := repo.NewEmailRepo(db)

	now := timeutil.NowUnix()
	rec := &model.EmailExtraction{
		ExtFileID:      "3076",
		ExtFileName:    "3076.txt",
		EmailContent:   "hello",
		EmailTo:        []string{"a@example.com", "b@example.com"},
		ComplianceRisk: boolPtr(true),
		Embedding:      vec(0.5),
		Ctime:          now,
		Mtime:          now,
	}
	require.NoError(t, emails.Create(ctx, rec))
	require.NotZero(t, rec.ID)

	err := emails.Create(ctx, &model.EmailExtraction{ExtFileID: "3076", ExtFileName: "dup"})
	require.ErrorIs(t, err, appErr.ErrConflict)

	got, err := emails.GetByExtFileID(ctx, "3076")
	require.NoError(t, err)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, got.EmailTo)
	require.NotNil(t, got.ComplianceRisk)
	require.True(t, *got.ComplianceRisk)
	require.InDeltaSlice(t, rec.Embedding, got.Embedding, 1e-6)

	_, err = emails.GetByExtFileID(ctx, "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestEmailRepoApplyExtractionIsIdempotent(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	emails := repo.NewEmailRepo(db)

	require.NoError(t, emails.UpsertUploaded(ctx, &model.EmailExtraction{
		ExtFileID: "3077", ExtFileName: "3077.txt", EmailContent: "body", FullEmail: "full", AssetID: "asset-1", Mtime: 1,
	}))
	fields := &model.ExtractionFields{
		ResultID:        "res-1",
		EmailFrom:       "boss@example.com",
		EmailTo:         []string{"team@example.com"},
		PeopleMentioned: []string{"Jeff"},
		ComplianceRisk:  boolPtr(false),
		Genre:           "company_business",
		Date:            "05/14/2001",
	}
	for i := 0; i < 2; i++ {
		ok, err := emails.ApplyExtraction(ctx, "3077", fields, int64(10+i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	got, err := emails.GetByExtFileID(ctx, "3077")
	require.NoError(t, err)
	require.Equal(t, "asset-1", got.AssetID)
	require.Equal(t, "body", got.EmailContent)
	require.Equal(t, "company_business", got.Genre)
	require.Equal(t, []string{"Jeff"}, got.PeopleMentioned)
	require.False(t, *got.ComplianceRisk)

	total, err := emails.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	ok, err := emails.ApplyExtraction(ctx, "nope", fields, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmailRepoSearchSimilarWithFilter(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	emails := repo.NewEmailRepo(db)

	seeds := []struct {
		id    string
		genre string
		seed  float32
	}{
		{"a", "company_business", 0.1},
		{"b", "company_business", 0.9},
		{"c", "personal", 0.1},
		{"d", "company_business", 0.3},
	}
	for _, s := range seeds {
		require.NoError(t, emails.UpsertEmbedding(ctx, &model.EmailExtraction{ExtFileID: s.id, ExtFileName: s.id, Embedding: vec(s.seed), EmbeddingModel: "m1"}))
		_, err := emails.ApplyExtraction(ctx, s.id, &model.ExtractionFields{Genre: s.genre}, 1)
		require.NoError(t, err)
	}
	require.NoError(t, emails.UpsertUploaded(ctx, &model.EmailExtraction{ExtFileID: "e", ExtFileName: "e"}))

	hits, err := emails.SearchSimilar(ctx, repo.SimilarityQuery{
		Vector:  vec(0.1),
		Metric:  repo.MetricL2,
		Filters: map[string]string{"genre": "company_business"},
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "a", hits[0].ExtFileID)
	for i, h := range hits {
		require.Equal(t, "company_business", h.Genre)
		require.True(t, h.VectorRanked)
		if i > 0 {
			require.LessOrEqual(t, *hits[i-1].Score, *h.Score)
		}
	}

	all, err := emails.SearchSimilar(ctx, repo.SimilarityQuery{Vector: vec(0.1), Metric: repo.MetricCosine, Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 5)
	last := all[len(all)-1]
	require.Equal(t, "e", last.ExtFileID)
	require.Nil(t, last.Score)
	require.False(t, last.VectorRanked)

	pending, err := emails.ListUnembedded(ctx, "m1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	col, err := emails.EmbeddingColumn(ctx)
	require.NoError(t, err)
	require.Equal(t, "vector", col.UDTName)
	require.Equal(t, 256, col.Dimension)
}

func TestEmailRepoSeparatesEmbeddingModels(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	emails := repo.NewEmailRepo(db)

	require.NoError(t, emails.UpsertEmbedding(ctx, &model.EmailExtraction{ExtFileID: "a", Embedding: vec(0.1), EmbeddingModel: "primary"}))
	require.NoError(t, emails.UpsertEmbedding(ctx, &model.EmailExtraction{ExtFileID: "b", Embedding: vec(0.1), EmbeddingModel: "fallback"}))
	require.NoError(t, emails.UpsertUploaded(ctx, &model.EmailExtraction{ExtFileID: "c"}))

	got, err := emails.GetByExtFileID(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "fallback", got.EmbeddingModel)

	hits, err := emails.SearchSimilar(ctx, repo.SimilarityQuery{Vector: vec(0.1), Model: "primary", Metric: repo.MetricCosine, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, "a", hits[0].ExtFileID)
	require.True(t, hits[0].VectorRanked)
	for _, h := range hits[1:] {
		require.False(t, h.VectorRanked)
		require.Nil(t, h.Score)
	}

	embedded, err := emails.EmbeddedExtFileIDs(ctx, "primary")
	require.NoError(t, err)
	require.Equal(t, map[string]struct{}{"a": {}}, embedded)

	pending, err := emails.ListUnembedded(ctx, "primary", 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "c", pending[0].ExtFileID)
	require.Equal(t, "b", pending[1].ExtFileID)

	pending, err = emails.ListUnembedded(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}
