package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
)

const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

var ErrUnavailable = appErr.ErrUnavailable

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string, taskType string, dimension int) ([]float32, error)
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

// ModelEmbedder is an embedder that may answer from more than one model.
type ModelEmbedder interface {
	EmbedModel(ctx context.Context, text string, taskType string) ([]float32, string, error)
}

// EmbedWithModel returns the vector together with the name of the model that
// produced it. Vectors of different models must never be compared.
func EmbedWithModel(ctx context.Context, e IEmbedder, text string, taskType string) ([]float32, string, error) {
	if m, ok := e.(ModelEmbedder); ok {
		return m.EmbedModel(ctx, text, taskType)
	}
	vec, err := e.Embed(ctx, text, taskType)
	if err != nil {
		return nil, "", err
	}
	return vec, e.ModelName(), nil
}

// PrimaryModel names the model a healthy embedder answers with.
func PrimaryModel(e IEmbedder) string {
	if p, ok := e.(interface{ PrimaryModel() string }); ok {
		return p.PrimaryModel()
	}
	return e.ModelName()
}

type embedder struct {
	provider  IEmbedProvider
	model     string
	dimension int
}

// NewEmbedder binds a provider to one model and output dimension.
func NewEmbedder(p IEmbedProvider, model string, dimension int) IEmbedder {
	return &embedder{provider: p, model: model, dimension: dimension}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text, taskType, e.dimension)
}

// ModelName identifies the vector space: the same model truncated to a
// different dimension yields vectors that must not be mixed.
func (e *embedder) ModelName() string {
	name := e.provider.Name() + ":" + e.model
	if e.dimension > 0 {
		name += "/" + strconv.Itoa(e.dimension)
	}
	return name
}

type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)

var embedRegistry = map[string]EmbedProviderFactory{}

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("embedding provider is required")
	}
	factory := embedRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embedding provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("embedding provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode embedding provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode embedding provider config: %w", err)
	}
	return nil
}

// resolveKey prefers an inline key and falls back to the named env var.
func resolveKey(key, env string) string {
	key = strings.TrimSpace(key)
	if key != "" || env == "" {
		return key
	}
	return strings.TrimSpace(os.Getenv(env))
}
