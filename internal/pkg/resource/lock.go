package resource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const lockRetryDelay = 50 * time.Millisecond

// LockTimeoutError is returned when a file lock is not acquired in time.
type LockTimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e LockTimeoutError) ErrorType() string {
	return "lock_timeout"
}

func (e LockTimeoutError) Error() string {
	return fmt.Sprintf(`cannot acquire lock "%s": timeout after %s`, e.Path, e.Timeout)
}

// AcquireFileLock waits up to the timeout for an exclusive lock of the file.
// Each call opens a new file descriptor, so calls from the same process exclude each other too.
// The returned function releases the lock.
func AcquireFileLock(ctx context.Context, path string, timeout time.Duration) (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.PrefixErrorf(err, `cannot create directory for lock "%s"`, path)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fsLock := flock.New(path)
	locked, err := fsLock.TryLockContext(lockCtx, lockRetryDelay)
	if locked {
		return fsLock.Unlock, nil
	}

	// The descriptor is open, also if the lock was not acquired
	if closeErr := fsLock.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	switch {
	case ctx.Err() != nil:
		return nil, errors.PrefixErrorf(ctx.Err(), `cannot acquire lock "%s"`, path)
	case err == nil || errors.Is(err, context.DeadlineExceeded):
		return nil, errors.WithStack(LockTimeoutError{Path: path, Timeout: timeout})
	default:
		return nil, errors.PrefixErrorf(err, `cannot acquire lock "%s"`, path)
	}
}
