// Package filelock implements the cross-process advisory exclusion used
// to serialize shared-tail ring consumers. It uses flock(2), whose locks
// belong to an open file description: every Acquire opens its own
// descriptor, so two Locks on the same name exclude each other even
// within a single process, as well as across processes.
package filelock

import (
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/adred-codev/shmcomm/internal/metrics"
	"github.com/adred-codev/shmcomm/internal/naming"
	"github.com/adred-codev/shmcomm/internal/shmerr"
)

const retryDelay = 50 * time.Microsecond

// Lock is an OS advisory lock keyed by segment name, materialized as a
// zero-byte file under the system temp directory.
type Lock struct {
	name string
	path string
	fd   int
}

func pathFor(segmentName string) string {
	return filepath.Join(os.TempDir(), "shmcomm_"+naming.SanitizeForLock(segmentName)+".lock")
}

// New returns an unacquired Lock for the given segment name.
func New(segmentName string) *Lock {
	return &Lock{name: segmentName, path: pathFor(segmentName), fd: -1}
}

// Acquire opens the lock file (creating it if absent) and spins on a
// non-blocking exclusive OS lock until acquired or timeout elapses.
// timeout < 0 waits forever. Observes the contended-wait duration under
// FileLockWaitSeconds regardless of outcome.
func (l *Lock) Acquire(timeout time.Duration) error {
	fd, err := unix.Open(l.path, unix.O_RDWR|unix.O_CREAT, 0o666)
	if err != nil {
		return &shmerr.ConnectionError{Name: l.path, Err: err}
	}

	waitStart := time.Now()
	forever := timeout < 0
	var deadline time.Time
	if !forever {
		deadline = time.Now().Add(timeout)
	}
	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.fd = fd
			metrics.FileLockWaitSeconds.WithLabelValues(l.name).Observe(time.Since(waitStart).Seconds())
			return nil
		}
		if !forever && time.Now().After(deadline) {
			unix.Close(fd)
			metrics.FileLockWaitSeconds.WithLabelValues(l.name).Observe(time.Since(waitStart).Seconds())
			return &shmerr.TimeoutError{Op: "filelock acquire", Timeout: timeout.String()}
		}
		time.Sleep(retryDelay)
	}
}

// Release releases the OS lock and closes the descriptor. Idempotent.
func (l *Lock) Release() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Flock(l.fd, unix.LOCK_UN)
	unix.Close(l.fd)
	l.fd = -1
	return err
}

// WithLock acquires l, runs fn, and releases l on every exit path.
func WithLock(l *Lock, timeout time.Duration, fn func() error) error {
	if err := l.Acquire(timeout); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
