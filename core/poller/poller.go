// Package poller turns an asynchronous provider job into a blocking wait
// with a bounded attempt budget. It polls at a fixed interval and never
// busy-waits; cancellation is honored between polls.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vm-migrator/core/models"

	"github.com/cenkalti/backoff/v4"
)

// Result is the terminal outcome of a wait.
type Result string

const (
	Success       Result = "success"
	TimedOut      Result = "timed_out"
	RemoteFailure Result = "remote_failure"
	Aborted       Result = "aborted"
)

// Handle is an opaque reference to a pending asynchronous remote job.
// Status is invoked once per poll; it reports whether the job is done,
// whether it has failed remotely, and any error from the status call
// itself. A handle lives for a single stage execution only.
type Handle struct {
	ID     string
	Status func(ctx context.Context) (done bool, failed bool, err error)
}

// Config bounds a single wait. Different stages choose different bounds.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultExportConfig matches the export-wait ceiling of roughly one hour.
func DefaultExportConfig() Config {
	return Config{Interval: 60 * time.Second, MaxAttempts: 60}
}

var errStillPending = errors.New("remote job still pending")

// WaitUntil polls the handle until it is done, it fails remotely, the
// attempt budget is exhausted, or ctx is cancelled. A remote failure is
// returned immediately with no further polls; exhausting MaxAttempts
// returns TimedOut without performing an extra poll. A transient status
// error is not terminal: one dropped connection over an hour-long wait
// must not sink the job, so it counts against the budget like a pending
// poll and the wait continues.
func WaitUntil(ctx context.Context, h Handle, cfg Config) (Result, error) {
	if cfg.MaxAttempts < 1 {
		return TimedOut, fmt.Errorf("poll budget for %s is empty", h.ID)
	}

	var remoteErr error
	var failedRemotely bool
	operation := func() error {
		done, failed, err := h.Status(ctx)
		if err != nil {
			remoteErr = err
			if models.KindOf(err).Retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		if failed {
			failedRemotely = true
			remoteErr = fmt.Errorf("remote job %s reported failure", h.ID)
			return backoff.Permanent(remoteErr)
		}
		if done {
			return nil
		}
		return errStillPending
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Interval), uint64(cfg.MaxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(operation, b)
	switch {
	case err == nil:
		return Success, nil
	case ctx.Err() != nil:
		return Aborted, ctx.Err()
	case failedRemotely:
		return RemoteFailure, remoteErr
	case errors.Is(err, errStillPending) || models.KindOf(err).Retryable():
		return TimedOut, fmt.Errorf("remote job %s unresolved after %d polls: %w", h.ID, cfg.MaxAttempts, err)
	default:
		return RemoteFailure, remoteErr
	}
}
