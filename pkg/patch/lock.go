package patch

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/opencore-vm/ocpatch/pkg/logger"
)

const lockRetryDelay = 100 * time.Millisecond

// FileLock is an advisory mutual-exclusion token keyed by a target file's
// path, held for the duration of a whole read-modify-write transaction.
// It is cooperative: it guards against other instances of this tool, not
// against arbitrary external writers.
type FileLock struct {
	fl       *flock.Flock
	lockPath string
}

func NewFileLock(path string) *FileLock {
	lockPath := path + ".lock"
	return &FileLock{
		fl:       flock.New(lockPath),
		lockPath: lockPath,
	}
}

// Acquire blocks until the lock is held or the timeout elapses, in which
// case it returns a LockTimeoutError.
func (l *FileLock) Acquire(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := l.fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &LockTimeoutError{Path: l.lockPath, Timeout: timeout}
		}
		return errors.Wrapf(err, "failed to lock %s", l.lockPath)
	}
	if !ok {
		return &LockTimeoutError{Path: l.lockPath, Timeout: timeout}
	}
	return nil
}

// Release drops the lock and removes the lock artifact.
func (l *FileLock) Release() {
	if err := l.fl.Unlock(); err != nil {
		logger.L().Warn("failed to release lock",
			slog.String("path", l.lockPath), slog.String("error", err.Error()))
		return
	}
	_ = os.Remove(l.lockPath)
}
