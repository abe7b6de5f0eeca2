package ai

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

type groupEmbedder struct {
	items []EmbedderEntry
}

func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	if len(items) == 0 {
		return nil
	}
	return &groupEmbedder{items: items}
}

func (g *groupEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vec, _, err := g.EmbedModel(ctx, text, taskType)
	return vec, err
}

// EmbedModel tries the members in order and reports the model name of the
// member that answered.
func (g *groupEmbedder) EmbedModel(ctx context.Context, text string, taskType string) ([]float32, string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, text, taskType)
		if err == nil {
			if i > 0 {
				logutil.GetLogger(ctx).Warn("embedding served by fallback model",
					zap.String("name", item.Name), zap.String("model", item.Embedder.ModelName()))
			}
			return res, item.Embedder.ModelName(), nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, "", ErrUnavailable
	}
	return nil, "", lastErr
}

func (g *groupEmbedder) PrimaryModel() string {
	for _, item := range g.items {
		if item.Embedder != nil {
			return item.Embedder.ModelName()
		}
	}
	return ""
}

// ModelName joins the model names of the members in fallback order.
func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		if name := item.Embedder.ModelName(); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return strings.Join(names, "|")
}

type timeoutEmbedder struct {
	next    IEmbedder
	timeout time.Duration
}

// WithTimeout bounds every call to e by d.
func WithTimeout(e IEmbedder, d time.Duration) IEmbedder {
	if e == nil || d <= 0 {
		return e
	}
	return &timeoutEmbedder{next: e, timeout: d}
}

func (t *timeoutEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Embed(ctx, text, taskType)
}

func (t *timeoutEmbedder) ModelName() string {
	return t.next.ModelName()
}
