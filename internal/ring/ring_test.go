package ring

import (
	"fmt"
	"testing"
	"time"

	"github.com/adred-codev/shmcomm/internal/filelock"
	"github.com/adred-codev/shmcomm/internal/shmerr"
	"github.com/adred-codev/shmcomm/internal/shmseg"
)

func newSeg(t *testing.T, numSlots, slotSize int64) *shmseg.Segment {
	t.Helper()
	name := fmt.Sprintf("shmcomm_test_%s_%d", t.Name(), time.Now().UnixNano())
	seg, err := shmseg.Create(name, numSlots, slotSize)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { seg.Close(true) })
	return seg
}

func TestWriteReadPrivateRoundTrip(t *testing.T) {
	seg := newSeg(t, 8, 64)
	payload := []byte("hello ring")

	ok, err := Write(seg, payload, false, 0, true)
	if err != nil || !ok {
		t.Fatalf("Write: ok=%v err=%v", ok, err)
	}

	got, newTail, ok := ReadPrivate(seg, 0)
	if !ok {
		t.Fatal("ReadPrivate: expected a message")
	}
	if string(got) != string(payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
	if newTail != 1 {
		t.Fatalf("newTail = %d, want 1", newTail)
	}
}

func TestReadPrivateEmptyWhenCaughtUp(t *testing.T) {
	seg := newSeg(t, 8, 64)
	if _, _, ok := ReadPrivate(seg, 0); ok {
		t.Fatal("expected empty read on fresh ring")
	}
}

func TestMaxPayloadBoundary(t *testing.T) {
	seg := newSeg(t, 4, 16) // MaxPayload = 12
	exact := make([]byte, MaxPayload(seg.SlotSize))
	if ok, err := Write(seg, exact, false, 0, true); err != nil || !ok {
		t.Fatalf("exact-size write failed: ok=%v err=%v", ok, err)
	}

	tooBig := make([]byte, MaxPayload(seg.SlotSize)+1)
	_, err := Write(seg, tooBig, false, 0, true)
	if _, ok := err.(*shmerr.ArgumentError); !ok {
		t.Fatalf("expected *shmerr.ArgumentError, got %T: %v", err, err)
	}
}

func TestRingCapacityIsNumSlotsMinusOne(t *testing.T) {
	seg := newSeg(t, 8, 16) // capacity 7
	for i := 0; i < 7; i++ {
		ok, err := Write(seg, []byte("x"), false, 0, false)
		if err != nil || !ok {
			t.Fatalf("write %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := Write(seg, []byte("x"), false, 0, false)
	if err != nil {
		t.Fatalf("8th write errored: %v", err)
	}
	if ok {
		t.Fatal("8th write should have been rejected (ring full)")
	}
	if got := seg.Header().DropCount(); got != 1 {
		t.Fatalf("DropCount = %d, want 1", got)
	}
}

func TestBlockingWriteTimesOutWhenFull(t *testing.T) {
	seg := newSeg(t, 4, 16)
	for i := 0; i < 3; i++ {
		if ok, err := Write(seg, []byte("x"), false, 0, false); err != nil || !ok {
			t.Fatalf("fill write %d: ok=%v err=%v", i, ok, err)
		}
	}
	start := time.Now()
	_, err := Write(seg, []byte("x"), true, 30*time.Millisecond, false)
	elapsed := time.Since(start)
	if _, ok := err.(*shmerr.BufferFullError); !ok {
		t.Fatalf("expected *shmerr.BufferFullError, got %T", err)
	}
	if elapsed < 25*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestOverwriteWrapRetainsLastNMinus1(t *testing.T) {
	seg := newSeg(t, 8, 16) // capacity 7
	for i := 0; i < 16; i++ {
		if _, err := Write(seg, []byte{byte(i)}, false, 0, true); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	var got []byte
	tail := int64(0)
	for {
		p, newTail, ok := ReadPrivate(seg, tail)
		if !ok {
			break
		}
		got = append(got, p[0])
		tail = newTail
	}
	if len(got) != 7 {
		t.Fatalf("observed %d messages, want 7", len(got))
	}
	for i, v := range got {
		want := byte(16 - 7 + i)
		if v != want {
			t.Fatalf("message %d = %d, want %d", i, v, want)
		}
	}
}

func TestSharedTailMutualExclusion(t *testing.T) {
	seg := newSeg(t, 16, 16)
	const n = 10
	for i := 0; i < n; i++ {
		if ok, err := Write(seg, []byte{byte(i)}, false, 0, false); err != nil || !ok {
			t.Fatalf("write %d: ok=%v err=%v", i, ok, err)
		}
	}

	lock := filelock.New(fmt.Sprintf("shmcomm_test_shared_%d", time.Now().UnixNano()))
	seen := map[byte]int{}
	consumer := func() {
		for {
			var payload []byte
			var ok bool
			err := filelock.WithLock(lock, time.Second, func() error {
				p, claimed := ReadShared(seg)
				payload, ok = p, claimed
				return nil
			})
			if err != nil || !ok {
				return
			}
			seen[payload[0]]++
		}
	}
	consumer()
	consumer()

	if len(seen) != n {
		t.Fatalf("observed %d distinct messages, want %d", len(seen), n)
	}
	for v, count := range seen {
		if count != 1 {
			t.Fatalf("message %d observed %d times, want 1", v, count)
		}
	}
}

func TestStatsUsedAndFreeSlots(t *testing.T) {
	seg := newSeg(t, 8, 16) // capacity 7
	for i := 0; i < 3; i++ {
		Write(seg, []byte{byte(i)}, false, 0, false)
	}
	st := Stats(seg)
	if st.UsedSlots != 3 {
		t.Fatalf("UsedSlots = %d, want 3", st.UsedSlots)
	}
	if st.FreeSlots != 4 {
		t.Fatalf("FreeSlots = %d, want 4", st.FreeSlots)
	}
	if st.MsgCount != 3 {
		t.Fatalf("MsgCount = %d, want 3", st.MsgCount)
	}
}
