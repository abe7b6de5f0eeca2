package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
)

// langchainConfig targets any OpenAI compatible embedding endpoint, local
// servers included. The endpoint cannot truncate vectors, so the served model
// must already output the configured dimension; any other size is rejected.
type langchainConfig struct {
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
	BaseURL   string `json:"base_url"`
}

type langchainEmbedProvider struct {
	apiKey  string
	baseURL string

	mu        sync.Mutex
	embedders map[string]embeddings.Embedder
}

func (p *langchainEmbedProvider) Name() string {
	return "langchain"
}

func (p *langchainEmbedProvider) embedderFor(model string) (embeddings.Embedder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.embedders[model]; ok {
		return e, nil
	}
	opts := []openai.Option{
		openai.WithToken(p.apiKey),
		openai.WithEmbeddingModel(model),
	}
	if p.baseURL != "" {
		opts = append(opts, openai.WithBaseURL(p.baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	p.embedders[model] = e
	return e, nil
}

// Embed uses the query path for RETRIEVAL_QUERY and the document path for
// everything else.
func (p *langchainEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string, dimension int) ([]float32, error) {
	e, err := p.embedderFor(model)
	if err != nil {
		return nil, err
	}
	var vec []float32
	if taskType == TaskRetrievalQuery {
		if vec, err = e.EmbedQuery(ctx, text); err != nil {
			return nil, err
		}
	} else {
		vectors, err := e.EmbedDocuments(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) == 0 {
			return nil, fmt.Errorf("langchain embedder returned no vectors")
		}
		vec = vectors[0]
	}
	if dimension > 0 && len(vec) != dimension {
		return nil, fmt.Errorf("model %s returns %d dimensions, configured %d: %w",
			model, len(vec), dimension, appErr.ErrInvalid)
	}
	return vec, nil
}

func createLangchainEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &langchainConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := resolveKey(cfg.APIKey, cfg.APIKeyEnv)
	if apiKey == "" {
		apiKey = "none"
	}
	return &langchainEmbedProvider{
		apiKey:    apiKey,
		baseURL:   strings.TrimSpace(cfg.BaseURL),
		embedders: make(map[string]embeddings.Embedder),
	}, nil
}

func init() {
	RegisterEmbed("langchain", createLangchainEmbedFactory)
}
