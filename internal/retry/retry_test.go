package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sjsage522/metricworker/pkg/errors"
)

var fast = Config{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := WithRetry(context.Background(), fast, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("timeout")
	_, err := WithRetry(context.Background(), fast, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), fast, func(ctx context.Context) (int, error) {
		calls++
		return 0, apperrors.NewStructure("adtraction", "label missing")
	})

	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesNavigationErrors(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), fast, func(ctx context.Context) (int, error) {
		calls++
		return 0, apperrors.NewNavigation("newegg", "goto", context.DeadlineExceeded)
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryAttemptTimeout(t *testing.T) {
	cfg := Config{Attempts: 1, Timeout: 5 * time.Millisecond}
	_, err := WithRetry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := WithRetry(ctx, fast, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestBackoffDelay(t *testing.T) {
	for attempt := 0; attempt < 40; attempt++ {
		d := backoffDelay(attempt, time.Second, 10*time.Second)
		assert.LessOrEqual(t, d, 10*time.Second)
		assert.Greater(t, d, time.Duration(0))
	}
	assert.Zero(t, backoffDelay(3, 0, time.Second))
}
