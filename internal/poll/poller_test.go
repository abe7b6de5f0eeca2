package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
)

var errTimeout = errors.New("504")

type recorder struct {
	sleeps []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func testConfig(rec *recorder) Config {
	return Config{
		Interval:      time.Second,
		RetryInterval: 2 * time.Second,
		MaxRetries:    3,
		Retryable:     func(err error) bool { return errors.Is(err, errTimeout) },
		Sleep:         rec.sleep,
	}
}

func isDone(s string) bool { return s == "completed" || s == "failed" }

// script replays responses in order; each entry is either a status or an error.
func script(steps ...interface{}) (QueryFunc[string], *int) {
	calls := 0
	return func(ctx context.Context, ids []string) (map[string]string, error) {
		step := steps[calls]
		calls++
		if err, ok := step.(error); ok {
			return nil, err
		}
		out := make(map[string]string, len(ids))
		for _, id := range ids {
			out[id] = step.(string)
		}
		return out, nil
	}, &calls
}

func TestPollUntilTerminal(t *testing.T) {
	rec := &recorder{}
	query, calls := script("processing", "processing", "completed")
	got, err := New(testConfig(rec), query, isDone).Run(context.Background(), []string{"t1"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"t1": "completed"}, got)
	require.Equal(t, 3, *calls)
	require.Equal(t, []time.Duration{time.Second, time.Second}, rec.sleeps)
}

func TestPollRecoversWithinRetryBudget(t *testing.T) {
	rec := &recorder{}
	query, calls := script(errTimeout, errTimeout, errTimeout, "failed")
	got, err := New(testConfig(rec), query, isDone).Run(context.Background(), []string{"t1"})
	require.NoError(t, err)
	require.Equal(t, "failed", got["t1"])
	require.Equal(t, 4, *calls)
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, rec.sleeps)
}

func TestPollGivesUpOnFourthTimeout(t *testing.T) {
	rec := &recorder{}
	query, calls := script(errTimeout, errTimeout, errTimeout, errTimeout, "completed")
	_, err := New(testConfig(rec), query, isDone).Run(context.Background(), []string{"t1"})
	require.ErrorIs(t, err, errTimeout)
	require.Equal(t, 4, *calls)
}

func TestPollRetryBudgetResetsAfterSuccess(t *testing.T) {
	rec := &recorder{}
	query, calls := script(errTimeout, errTimeout, errTimeout, "processing", errTimeout, errTimeout, errTimeout, "completed")
	_, err := New(testConfig(rec), query, isDone).Run(context.Background(), []string{"t1"})
	require.NoError(t, err)
	require.Equal(t, 8, *calls)
}

func TestPollOtherErrorAbortsImmediately(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("bad request")
	query, calls := script(boom, "completed")
	_, err := New(testConfig(rec), query, isDone).Run(context.Background(), []string{"t1"})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, *calls)
	require.Empty(t, rec.sleeps)
}

func TestPollEmptyIDs(t *testing.T) {
	query, calls := script()
	_, err := New(testConfig(&recorder{}), query, isDone).Run(context.Background(), nil)
	require.ErrorIs(t, err, appErr.ErrNoIDs)
	require.Zero(t, *calls)
}

func TestPollWaitsForEveryTrackedID(t *testing.T) {
	calls := 0
	query := func(ctx context.Context, ids []string) (map[string]string, error) {
		calls++
		if calls == 1 {
			return map[string]string{"a": "processed"}, nil
		}
		return map[string]string{"a": "processed", "b": "not_processed"}, nil
	}
	terminal := func(s string) bool { return s == "processed" || s == "not_processed" }
	got, err := New(testConfig(&recorder{}), query, terminal).Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 2, calls)
}

func TestPollHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	query := func(ctx context.Context, ids []string) (map[string]string, error) {
		calls++
		cancel()
		return map[string]string{"t1": "processing"}, nil
	}
	cfg := testConfig(&recorder{})
	cfg.Sleep = Sleep
	_, err := New(cfg, query, isDone).Run(ctx, []string{"t1"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestSleepTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := Sleep(ctx, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
}
