package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
)

type stubEmbedder struct {
	name  string
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func (s *stubEmbedder) ModelName() string { return s.name }

func TestNewEmbedProviderUnknown(t *testing.T) {
	_, err := NewEmbedProvider("nope", map[string]interface{}{})
	require.Error(t, err)
	_, err = NewEmbedProvider("", nil)
	require.Error(t, err)
}

func TestOpenAIEmbedProvider(t *testing.T) {
	var got openAIEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	p, err := NewEmbedProvider("openai", map[string]interface{}{"api_key": "sk-test", "base_url": srv.URL})
	require.NoError(t, err)
	e := NewEmbedder(p, "text-embedding-3-small", 3)
	vec, err := e.Embed(context.Background(), "hello", TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	require.Equal(t, 3, got.Dimensions)
	require.Equal(t, "text-embedding-3-small", got.Model)
	require.Equal(t, "openai:text-embedding-3-small/3", e.ModelName())
}

func TestLangchainProviderRejectsForeignDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"local-embed","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer srv.Close()

	p, err := NewEmbedProvider("langchain", map[string]interface{}{"base_url": srv.URL})
	require.NoError(t, err)

	vec, err := NewEmbedder(p, "local-embed", 3).Embed(context.Background(), "hello", TaskRetrievalDocument)
	require.NoError(t, err)
	require.Len(t, vec, 3)

	_, err = NewEmbedder(p, "local-embed", 2).Embed(context.Background(), "hello", TaskRetrievalQuery)
	require.Error(t, err)
	require.True(t, appErr.IsInvalid(err))
	require.Contains(t, err.Error(), "returns 3 dimensions, configured 2")
}

func TestOpenAIEmbedProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	p, err := NewEmbedProvider("openai", map[string]interface{}{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), "m", "x", "", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestProviderWithoutKeyIsUnavailable(t *testing.T) {
	t.Setenv("MAILX_EMBED_KEY", "")
	p, err := NewEmbedProvider("gemini", map[string]interface{}{"api_key_env": "MAILX_EMBED_KEY"})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), "m", "x", TaskRetrievalQuery, 256)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestResolveKeyFromEnv(t *testing.T) {
	t.Setenv("MAILX_EMBED_KEY", " secret ")
	require.Equal(t, "secret", resolveKey("", "MAILX_EMBED_KEY"))
	require.Equal(t, "inline", resolveKey("inline", "MAILX_EMBED_KEY"))
}

func TestGroupEmbedderFallsBack(t *testing.T) {
	first := &stubEmbedder{name: "a", err: errors.New("boom")}
	second := &stubEmbedder{name: "b", vec: []float32{1}}
	g := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: first}, {Name: "b", Embedder: second}})
	vec, err := g.Embed(context.Background(), "x", "")
	require.NoError(t, err)
	require.Equal(t, []float32{1}, vec)
	require.Equal(t, 1, first.calls)
	require.Equal(t, "a|b", g.ModelName())
}

func TestGroupEmbedderReportsAnsweringModel(t *testing.T) {
	first := &stubEmbedder{name: "gemini:m1/2", vec: []float32{1, 1}, err: errors.New("down")}
	second := &stubEmbedder{name: "openai:m2/2", vec: []float32{2, 2}}
	g := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: first}, {Name: "b", Embedder: second}})
	require.Equal(t, "gemini:m1/2", PrimaryModel(g))

	vec, modelName, err := EmbedWithModel(context.Background(), g, "x", TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{2, 2}, vec)
	require.Equal(t, "openai:m2/2", modelName)

	first.err = nil
	vec, modelName, err = EmbedWithModel(context.Background(), g, "x", TaskRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 1}, vec)
	require.Equal(t, "gemini:m1/2", modelName)

	single := &stubEmbedder{name: "solo", vec: []float32{3}}
	_, modelName, err = EmbedWithModel(context.Background(), single, "x", "")
	require.NoError(t, err)
	require.Equal(t, "solo", modelName)
	require.Equal(t, "solo", PrimaryModel(single))
}

func TestGroupEmbedderAllFail(t *testing.T) {
	g := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: &stubEmbedder{err: errors.New("boom")}}})
	_, err := g.Embed(context.Background(), "x", "")
	require.EqualError(t, err, "boom")
	require.Nil(t, NewGroupEmbedder(nil))
}

type deadlineEmbedder struct {
	deadline bool
}

func (d *deadlineEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	_, d.deadline = ctx.Deadline()
	return []float32{1}, nil
}

func (d *deadlineEmbedder) ModelName() string { return "deadline:model" }

func TestWithTimeout(t *testing.T) {
	inner := &deadlineEmbedder{}
	require.Same(t, IEmbedder(inner), WithTimeout(inner, 0))

	wrapped := WithTimeout(inner, time.Second)
	_, err := wrapped.Embed(context.Background(), "text", TaskRetrievalQuery)
	require.NoError(t, err)
	require.True(t, inner.deadline)
	require.Equal(t, "deadline:model", wrapped.ModelName())
}
