package worker

import (
	"context"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/job/jobs"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/resource"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// LockWaitTimeout returns the longest run time of the enabled jobs.
func LockWaitTimeout(ctx context.Context, logger log.Logger, cfg Config, fallback time.Duration) (time.Duration, error) {
	m := job.NewManager(logger)
	if err := jobs.Register(m); err != nil {
		return 0, err
	}
	if err := m.Filter(ctx, cfg.JobsAllowlist, cfg.JobsDenylist, cfg.DisabledJobs); err != nil {
		return 0, err
	}
	return job.MaxTimeout(m.All(), fallback), nil
}

// WaitForIdle waits until the worker lock can be acquired, so no task is running.
// It returns true if the lock was acquired, or false if the timeout elapsed first.
// The lock is released immediately.
func WaitForIdle(ctx context.Context, logger log.Logger, lockFile string, timeout time.Duration) (bool, error) {
	logger.Infof(ctx, `Waiting up to %s for lock "%s"`, timeout, lockFile)
	unlock, err := resource.AcquireFileLock(ctx, lockFile, timeout)
	var timeoutErr resource.LockTimeoutError
	switch {
	case errors.As(err, &timeoutErr):
		logger.Infof(ctx, `Lock "%s" timed out`, lockFile)
		return false, nil
	case err != nil:
		return false, err
	}

	logger.Infof(ctx, `Lock "%s" acquired`, lockFile)
	return true, unlock()
}
