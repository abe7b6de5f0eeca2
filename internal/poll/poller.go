package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
)

// QueryFunc asks the remote side for the status of every id.
type QueryFunc[S any] func(ctx context.Context, ids []string) (map[string]S, error)

type Config struct {
	Interval      time.Duration
	RetryInterval time.Duration
	MaxRetries    int
	// Retryable selects the errors that are retried in place.
	Retryable func(error) bool
	// Sleep is swapped in tests. It must return ctx.Err() when ctx ends.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Poller repeats a status query until every tracked id reaches a terminal
// state, an error aborts the loop, or ctx ends.
type Poller[S any] struct {
	cfg      Config
	query    QueryFunc[S]
	terminal func(S) bool
}

func New[S any](cfg Config, query QueryFunc[S], terminal func(S) bool) *Poller[S] {
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(error) bool { return false }
	}
	return &Poller[S]{cfg: cfg, query: query, terminal: terminal}
}

// Run returns the full status map once all ids are terminal. The retry
// budget applies per poll and is restored by every successful query.
func (p *Poller[S]) Run(ctx context.Context, ids []string) (map[string]S, error) {
	if len(ids) == 0 {
		return nil, appErr.ErrNoIDs
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("ids", len(ids)))
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		statuses, err := p.queryWithRetry(ctx, ids)
		if err != nil {
			return nil, err
		}
		if p.allTerminal(ids, statuses) {
			logger.Debug("poll finished", zap.Int("rounds", round))
			return statuses, nil
		}
		logger.Debug("poll pending, waiting", zap.Int("round", round))
		if err := p.cfg.Sleep(ctx, p.cfg.Interval); err != nil {
			return nil, err
		}
	}
}

func (p *Poller[S]) queryWithRetry(ctx context.Context, ids []string) (map[string]S, error) {
	attempts := 0
	for {
		statuses, err := p.query(ctx, ids)
		if err == nil {
			return statuses, nil
		}
		if ctx.Err() != nil || !p.cfg.Retryable(err) || attempts >= p.cfg.MaxRetries {
			return nil, fmt.Errorf("status query: %w", err)
		}
		attempts++
		logutil.GetLogger(ctx).Warn("status query failed, retrying",
			zap.Int("attempt", attempts), zap.Int("max_retries", p.cfg.MaxRetries), zap.Error(err))
		if err := p.cfg.Sleep(ctx, p.cfg.RetryInterval); err != nil {
			return nil, err
		}
	}
}

func (p *Poller[S]) allTerminal(ids []string, statuses map[string]S) bool {
	for _, id := range ids {
		s, ok := statuses[id]
		if !ok || !p.terminal(s) {
			return false
		}
	}
	return true
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
