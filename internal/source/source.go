package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/xxxsen/mailextract/internal/config"
	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
)

// File is one raw email document.
type File struct {
	Name    string
	Content []byte
}

// Source is where email documents live before they are uploaded.
type Source interface {
	// List returns document names in a stable order. Hidden files are skipped.
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, r io.Reader, size int64) error
}

type Factory func(args interface{}) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.SourceConfig) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("source.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

// ReadAll loads every listed document in List order.
func ReadAll(ctx context.Context, src Source) ([]File, error) {
	names, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	files := make([]File, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := src.Read(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		files = append(files, File{Name: name, Content: content})
	}
	return files, nil
}

// ValidName rejects names that could escape the source root or would be
// hidden from listing.
func ValidName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || isHidden(name) {
		return fmt.Errorf("invalid document name %q: %w", name, appErr.ErrInvalid)
	}
	return nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(path.Base(name), ".")
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("source config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode source config: %w", err)
	}
	return nil
}
