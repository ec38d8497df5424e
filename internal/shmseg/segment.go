// Package shmseg implements the segment manager: creation, attachment,
// validation, and teardown of named POSIX shared-memory regions backing
// a shmcomm ring buffer. It owns the mmap/munmap/unlink lifecycle and
// the fixed 128-byte header; the ring-buffer read/write protocol over a
// live segment lives in internal/ring.
//
// Header cell ownership mirrors the wire contract: the producer owns
// HEAD, MSG_COUNT, DROP_COUNT; the shared-tail consumer owns TAIL;
// everything else is immutable after Create.
package shmseg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/adred-codev/shmcomm/internal/naming"
	"github.com/adred-codev/shmcomm/internal/shmerr"
)

const shmDir = "/dev/shm"

// Segment is a handle to a mapped shared-memory region. Zero value is
// not usable; obtain one via Create or Attach.
type Segment struct {
	Name     string
	NumSlots int64
	SlotSize int64

	data []byte
	fd   int
}

// Header returns the live header view over this segment.
func (s *Segment) Header() Header { return headerAt(s.data) }

// Data returns the full mapped region, header included. Callers should
// use Slot for access to an individual slot's bytes.
func (s *Segment) Data() []byte { return s.data }

// Slot returns the byte window for slot index i.
func (s *Segment) Slot(i int64) []byte { return slotBytes(s.data, i, s.SlotSize) }

func segPath(name string) string { return filepath.Join(shmDir, name) }

func segSize(numSlots, slotSize int64) int64 { return int64(HeaderSize) + numSlots*slotSize }

// Create allocates a new segment, unlinking any stale region of the
// same name first (best effort, errors suppressed — the load-bearing
// resilience mechanism against a crashed previous owner).
func Create(name string, numSlots, slotSize int64) (*Segment, error) {
	_ = unix.Unlink(segPath(name))

	fd, err := unix.Open(segPath(name), unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o666)
	if err != nil {
		return nil, &shmerr.ConnectionError{Name: name, Err: fmt.Errorf("create: %w", err)}
	}

	size := segSize(numSlots, slotSize)
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		_ = unix.Unlink(segPath(name))
		return nil, &shmerr.ConnectionError{Name: name, Err: fmt.Errorf("ftruncate: %w", err)}
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		_ = unix.Unlink(segPath(name))
		return nil, &shmerr.ConnectionError{Name: name, Err: fmt.Errorf("mmap: %w", err)}
	}

	seg := &Segment{Name: name, NumSlots: numSlots, SlotSize: slotSize, data: data, fd: fd}
	seg.Header().init(numSlots, slotSize)
	return seg, nil
}

// Attach polls for a segment named name until it exists and its header
// validates, or until timeout elapses. timeout < 0 waits forever. A
// header magic/version mismatch fails immediately, without retry.
func Attach(name string, timeout, pollInterval time.Duration) (*Segment, error) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Millisecond
	}

	forever := timeout < 0
	var deadline time.Time
	if !forever {
		deadline = time.Now().Add(timeout)
	}

	var lastOpenErr error
	for {
		seg, mismatchErr, openErr := tryAttach(name)
		if mismatchErr != nil {
			return nil, mismatchErr
		}
		if openErr == nil {
			return seg, nil
		}
		lastOpenErr = openErr
		if !forever && time.Now().After(deadline) {
			return nil, &shmerr.ConnectionError{Name: name, Err: fmt.Errorf("timed out waiting for segment: %w", lastOpenErr)}
		}
		time.Sleep(pollInterval)
	}
}

func tryAttach(name string) (seg *Segment, mismatchErr error, openErr error) {
	fd, err := unix.Open(segPath(name), unix.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}
	size := st.Size
	if size < HeaderSize {
		unix.Close(fd)
		// The file exists but Create hasn't reached Ftruncate yet (or a
		// concurrent Create just unlinked and recreated it); this is the
		// same "not ready yet" state as the segment not existing at all,
		// so it must retry rather than fail permanently.
		return nil, nil, errors.New("segment smaller than header")
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	hdr := headerAt(data)
	if hdr.Magic() != Magic || hdr.Version() != Version {
		unix.Munmap(data)
		unix.Close(fd)
		return nil, &shmerr.ConnectionError{Name: name, Err: fmt.Errorf("header mismatch: magic=%x version=%d", hdr.Magic(), hdr.Version())}, nil
	}

	numSlots := hdr.NumSlots()
	slotSize := hdr.SlotSize()
	return &Segment{Name: name, NumSlots: numSlots, SlotSize: slotSize, data: data, fd: fd}, nil, nil
}

// Close unmaps and closes the segment's descriptor, and when destroy is
// true also removes the OS-level name. Idempotent: closing twice is a
// no-op the second time.
func (s *Segment) Close(destroy bool) error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	unix.Close(s.fd)
	s.fd = -1
	if destroy {
		_ = unix.Unlink(segPath(s.Name))
	}
	return err
}

// ForceUnlink removes a segment by name regardless of attachment state.
// Returns true if a segment existed and was removed.
func ForceUnlink(name string) bool {
	_, statErr := os.Stat(segPath(name))
	if statErr != nil {
		return false
	}
	return unix.Unlink(segPath(name)) == nil
}

// ListSegments enumerates shmcomm segment names currently present under
// /dev/shm. Returns nil (not an error) on platforms without a
// file-system-visible shared-memory namespace.
func ListSegments() []string {
	entries, err := os.ReadDir(shmDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), naming.SegmentPrefix) {
			names = append(names, e.Name())
		}
	}
	return names
}
