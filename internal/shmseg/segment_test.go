package shmseg

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func randName(t *testing.T) string {
	t.Helper()
	return "shmcomm_test_" + t.Name() + "_seg"
}

func TestCreateInitializesHeader(t *testing.T) {
	name := randName(t)
	seg, err := Create(name, 8, 128)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer seg.Close(true)

	hdr := seg.Header()
	if hdr.Magic() != Magic {
		t.Fatalf("magic = %x, want %x", hdr.Magic(), Magic)
	}
	if hdr.Version() != Version {
		t.Fatalf("version = %d, want %d", hdr.Version(), Version)
	}
	if hdr.NumSlots() != 8 || hdr.SlotSize() != 128 {
		t.Fatalf("geometry = %d/%d, want 8/128", hdr.NumSlots(), hdr.SlotSize())
	}
	if hdr.Head() != 0 || hdr.Tail() != 0 {
		t.Fatalf("head/tail not zeroed: %d/%d", hdr.Head(), hdr.Tail())
	}
}

func TestCreateCleansStaleSegment(t *testing.T) {
	name := randName(t)
	first, err := Create(name, 4, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first.Header().StoreHead(2) // simulate prior activity, no Close (stale)

	second, err := Create(name, 8, 128)
	if err != nil {
		t.Fatalf("Create over stale segment: %v", err)
	}
	defer second.Close(true)

	if second.Header().Head() != 0 {
		t.Fatalf("stale segment not reinitialized: head=%d", second.Header().Head())
	}
	if second.NumSlots != 8 {
		t.Fatalf("stale segment kept old geometry: numSlots=%d", second.NumSlots)
	}
}

func TestAttachSucceedsAfterCreate(t *testing.T) {
	name := randName(t)
	seg, err := Create(name, 4, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer seg.Close(true)

	attached, err := Attach(name, time.Second, time.Millisecond)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer attached.Close(false)

	if attached.NumSlots != 4 || attached.SlotSize != 64 {
		t.Fatalf("attached geometry mismatch: %d/%d", attached.NumSlots, attached.SlotSize)
	}
}

func TestAttachTimesOutWhenAbsent(t *testing.T) {
	name := randName(t)
	_, err := Attach(name, 20*time.Millisecond, time.Millisecond)
	if err == nil {
		t.Fatal("expected ConnectionError for absent segment, got nil")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	name := randName(t)
	seg, err := Create(name, 4, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := seg.Close(true); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := seg.Close(true); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestForceUnlinkIdempotent(t *testing.T) {
	name := randName(t)
	seg, err := Create(name, 4, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	seg.Close(false) // detach, leave segment on disk

	if !ForceUnlink(name) {
		t.Fatal("expected first ForceUnlink to report true")
	}
	if ForceUnlink(name) {
		t.Fatal("expected second ForceUnlink to report false")
	}
}

func TestAttachRetriesWhileSegmentIsBeingInitialized(t *testing.T) {
	name := randName(t)

	// Reproduce the window between Create's O_CREAT and its Ftruncate:
	// a file exists at the segment path but is too small to hold the
	// header yet.
	fd, err := unix.Open(segPath(name), unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o666)
	if err != nil {
		t.Fatalf("open placeholder: %v", err)
	}
	unix.Close(fd)
	defer unix.Unlink(segPath(name))

	ready := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		seg, err := Create(name, 4, 64)
		if err != nil {
			t.Errorf("Create: %v", err)
			close(ready)
			return
		}
		defer seg.Close(true)
		close(ready)
		<-time.After(100 * time.Millisecond)
	}()

	attached, err := Attach(name, time.Second, time.Millisecond)
	if err != nil {
		t.Fatalf("Attach should have retried past the undersized file, got: %v", err)
	}
	attached.Close(false)
	<-ready
}

func TestListSegmentsIncludesCreated(t *testing.T) {
	name := randName(t)
	seg, err := Create(name, 4, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer seg.Close(true)

	found := false
	for _, n := range ListSegments() {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("ListSegments() did not include %q", name)
	}
}
