package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"vm-migrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequenceHandle returns pending for the first n polls, then done.
func sequenceHandle(pendingPolls int, calls *int) Handle {
	return Handle{
		ID: "task-1",
		Status: func(ctx context.Context) (bool, bool, error) {
			*calls++
			return *calls > pendingPolls, false, nil
		},
	}
}

func fastConfig(maxAttempts int) Config {
	return Config{Interval: time.Millisecond, MaxAttempts: maxAttempts}
}

func TestWaitUntilResolvesOnLastAttempt(t *testing.T) {
	var calls int
	h := sequenceHandle(59, &calls)

	res, err := WaitUntil(context.Background(), h, fastConfig(60))

	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, 60, calls)
}

func TestWaitUntilTimesOutWithoutExtraPoll(t *testing.T) {
	var calls int
	h := Handle{
		ID: "task-1",
		Status: func(ctx context.Context) (bool, bool, error) {
			calls++
			return false, false, nil
		},
	}

	res, err := WaitUntil(context.Background(), h, fastConfig(60))

	assert.Equal(t, TimedOut, res)
	assert.Error(t, err)
	assert.Equal(t, 60, calls, "no 61st poll after the budget is spent")
}

func TestWaitUntilRemoteFailureStopsImmediately(t *testing.T) {
	var calls int
	h := Handle{
		ID: "task-1",
		Status: func(ctx context.Context) (bool, bool, error) {
			calls++
			if calls == 3 {
				return false, true, nil
			}
			return false, false, nil
		},
	}

	res, err := WaitUntil(context.Background(), h, fastConfig(60))

	assert.Equal(t, RemoteFailure, res)
	assert.Error(t, err)
	assert.Equal(t, 3, calls, "no retries after a remote failure")
}

func TestWaitUntilNonRetryableStatusErrorStopsImmediately(t *testing.T) {
	cause := errors.New("not authorized to describe export tasks")
	var calls int
	h := Handle{
		ID: "task-1",
		Status: func(ctx context.Context) (bool, bool, error) {
			calls++
			return false, false, models.NewError(models.ErrKindAuthorization, "export.status", cause)
		},
	}

	res, err := WaitUntil(context.Background(), h, fastConfig(10))

	assert.Equal(t, RemoteFailure, res)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls, "no retries on a non-retryable status error")
}

func TestWaitUntilToleratesTransientStatusErrors(t *testing.T) {
	var calls int
	h := Handle{
		ID: "task-1",
		Status: func(ctx context.Context) (bool, bool, error) {
			calls++
			if calls <= 2 {
				return false, false, errors.New("connection reset by peer")
			}
			return true, false, nil
		},
	}

	res, err := WaitUntil(context.Background(), h, fastConfig(10))

	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, 3, calls)
}

func TestWaitUntilTransientStatusErrorsExhaustBudget(t *testing.T) {
	boom := errors.New("connection reset by peer")
	var calls int
	h := Handle{
		ID: "task-1",
		Status: func(ctx context.Context) (bool, bool, error) {
			calls++
			return false, false, boom
		},
	}

	res, err := WaitUntil(context.Background(), h, fastConfig(3))

	assert.Equal(t, TimedOut, res)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls, "transient errors consume the budget like pending polls")
}

func TestWaitUntilCancelledBetweenPolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	h := Handle{
		ID: "task-1",
		Status: func(ctx context.Context) (bool, bool, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return false, false, nil
		},
	}

	res, err := WaitUntil(ctx, h, Config{Interval: 50 * time.Millisecond, MaxAttempts: 100})

	assert.Equal(t, Aborted, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 3)
}

func TestWaitUntilEmptyBudget(t *testing.T) {
	h := Handle{ID: "task-1", Status: func(ctx context.Context) (bool, bool, error) {
		t.Fatal("status must not be called with an empty budget")
		return false, false, nil
	}}

	res, err := WaitUntil(context.Background(), h, Config{Interval: time.Millisecond})

	assert.Equal(t, TimedOut, res)
	assert.Error(t, err)
}

func TestDefaultExportConfig(t *testing.T) {
	cfg := DefaultExportConfig()
	assert.Equal(t, 60*time.Second, cfg.Interval)
	assert.Equal(t, 60, cfg.MaxAttempts)
}
