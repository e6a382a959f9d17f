package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/flock"
)

// retryInterval is how often a waiting writer re-attempts the OS lock.
const retryInterval = 50 * time.Millisecond

// FileLock provides mutual exclusion over the ledger across independent
// operating system processes, with bounded wait. The OS-level advisory lock
// (flock) excludes other processes; a single-slot semaphore excludes other
// goroutines in this process, since flock is granted per file description
// and would happily re-admit our own process.
//
// The lock marker is a separate sidecar file next to the ledger, so locking
// never opens the ledger file itself and cannot interfere with the atomic
// rename commit.
type FileLock struct {
	path string
	sem  chan struct{}
}

// NewFileLock returns a lock backed by the marker file at path.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		path: path,
		sem:  make(chan struct{}, 1),
	}
}

// Acquire obtains the lock, waiting no longer than the context allows.
// It returns a release function on success and ErrLockTimeout when the
// bound elapses; a wait abandoned by caller cancellation reports the
// context's own error instead. The wait can only be abandoned before the
// lock is held.
func (l *FileLock) Acquire(ctx context.Context) (func() error, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, l.waitErr(ctx)
	}

	fl := flock.New(l.path)
	locked, err := fl.TryLockContext(ctx, retryInterval)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		<-l.sem
		return nil, err
	}
	if !locked {
		<-l.sem
		return nil, l.waitErr(ctx)
	}

	release := func() error {
		defer func() { <-l.sem }()
		return fl.Unlock()
	}
	return release, nil
}

// waitErr maps an abandoned wait to its cause. Caller cancellation passes
// through untouched; only a genuine deadline counts as a lock timeout.
func (l *FileLock) waitErr(ctx context.Context) error {
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return err
	}
	lockTimeouts.Inc()
	return ErrLockTimeout
}
