package embedcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mailextract/internal/ai"
	"github.com/xxxsen/mailextract/internal/model"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) ModelName() string { return "fake:model" }

type memStore struct {
	items  map[string][]float32
	saves  int
	getErr error
}

func (m *memStore) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.items[modelName+taskType+contentHash]
	return v, ok, nil
}

func (m *memStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	m.saves++
	m.items[item.ModelName+item.TaskType+item.ContentHash] = item.Embedding
	return nil
}

func TestLRUServesRepeatsFromMemory(t *testing.T) {
	inner := &countingEmbedder{}
	e := WithLRU(inner, 8, time.Minute)
	ctx := context.Background()

	first, err := e.Embed(ctx, "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	first[0] = 99
	second, err := e.Embed(ctx, "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, float32(5), second[0])
	require.Equal(t, 1, inner.calls)

	_, err = e.Embed(ctx, "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestLRUDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	require.Same(t, inner, WithLRU(inner, 0, time.Minute))
}

func TestStoreEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	store := &memStore{items: map[string][]float32{}}
	e := WithStore(inner, store)
	ctx := context.Background()

	_, err := e.Embed(ctx, "abc", "")
	require.NoError(t, err)
	_, err = e.Embed(ctx, "abc", "")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Equal(t, 1, store.saves)
	require.Equal(t, "fake:model", e.ModelName())
}

func TestStoreEmbedderPropagatesProviderError(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	store := &memStore{items: map[string][]float32{}}
	_, err := WithStore(inner, store).Embed(context.Background(), "abc", "")
	require.EqualError(t, err, "down")
	require.Zero(t, store.saves)
}

func TestStoreEmbedderFallsThroughOnReadError(t *testing.T) {
	inner := &countingEmbedder{}
	store := &memStore{items: map[string][]float32{}, getErr: errors.New("db gone")}
	vec, err := WithStore(inner, store).Embed(context.Background(), "abc", "")
	require.NoError(t, err)
	require.Equal(t, []float32{3, 1}, vec)
	require.Equal(t, 1, inner.calls)
	require.Equal(t, 1, store.saves)
}

type flakyEmbedder struct {
	name     string
	vec      []float32
	failures int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("unavailable")
	}
	return f.vec, nil
}

func (f *flakyEmbedder) ModelName() string { return f.name }

func TestPerMemberCacheKeepsModelsApart(t *testing.T) {
	primary := &flakyEmbedder{name: "gemini:m1/2", vec: []float32{1, 1}, failures: 1}
	secondary := &flakyEmbedder{name: "openai:m2/2", vec: []float32{2, 2}}
	store := &memStore{items: map[string][]float32{}}
	wrap := func(e ai.IEmbedder) ai.IEmbedder {
		return WithLRU(WithStore(e, store), 8, time.Minute)
	}
	g := ai.NewGroupEmbedder([]ai.EmbedderEntry{
		{Name: "gemini", Embedder: wrap(primary)},
		{Name: "openai", Embedder: wrap(secondary)},
	})
	ctx := context.Background()

	vec, modelName, err := ai.EmbedWithModel(ctx, g, "doc", ai.TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{2, 2}, vec)
	require.Equal(t, "openai:m2/2", modelName)

	vec, modelName, err = ai.EmbedWithModel(ctx, g, "doc", ai.TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 1}, vec)
	require.Equal(t, "gemini:m1/2", modelName)

	for key := range store.items {
		require.True(t, strings.HasPrefix(key, "gemini:m1/2") || strings.HasPrefix(key, "openai:m2/2"))
	}
	require.Len(t, store.items, 2)
}
