// Package ring implements the lock-free slot read/write protocol over
// a live shmseg.Segment: one producer path (overwrite or non-overwrite,
// blocking or non-blocking) and two consumer paths (private-cursor SPSC
// and shared-tail, lock-mediated multi-consumer).
package ring

import (
	"encoding/binary"
	"time"

	"github.com/adred-codev/shmcomm/internal/shmerr"
	"github.com/adred-codev/shmcomm/internal/shmseg"
)

const (
	lengthPrefixSize = 4
	writeRetryDelay  = 50 * time.Microsecond
)

// MaxPayload returns the largest payload that fits in one slot of the
// given slot size.
func MaxPayload(slotSize int64) int64 { return slotSize - lengthPrefixSize }

// Write implements the producer path (§4.2.1): writes payload into the
// next slot, then commits HEAD. overwrite=true never blocks or drops
// silently-no-error (publisher semantics); overwrite=false consults
// TAIL and, when full, either drops (block=false) or spins until
// timeout (block=true); timeout < 0 spins until space frees up.
func Write(seg *shmseg.Segment, payload []byte, block bool, timeout time.Duration, overwrite bool) (bool, error) {
	maxPayload := MaxPayload(seg.SlotSize)
	if int64(len(payload)) > maxPayload {
		return false, &shmerr.ArgumentError{Msg: "payload exceeds slot capacity"}
	}

	hdr := seg.Header()
	n := seg.NumSlots
	h := hdr.Head()
	next := (h + 1) % n

	if !overwrite {
		forever := timeout < 0
		deadline := time.Now().Add(timeout)
		for {
			t := hdr.Tail()
			if next != t {
				break
			}
			if !block {
				hdr.AddDropCount(1)
				return false, nil
			}
			if !forever && time.Now().After(deadline) {
				return false, &shmerr.BufferFullError{Segment: seg.Name, Timeout: timeout.String()}
			}
			time.Sleep(writeRetryDelay)
		}
	}

	slot := seg.Slot(h)
	binary.LittleEndian.PutUint32(slot[0:4], uint32(len(payload)))
	copy(slot[lengthPrefixSize:], payload)

	hdr.StoreHead(next)
	hdr.AddMsgCount(1)
	return true, nil
}

func readSlot(seg *shmseg.Segment, idx int64) []byte {
	slot := seg.Slot(idx)
	n := binary.LittleEndian.Uint32(slot[0:4])
	out := make([]byte, n)
	copy(out, slot[lengthPrefixSize:lengthPrefixSize+int64(n)])
	return out
}

// ReadPrivate implements the SPSC consumer path (§4.2.2): reads the
// slot at localTail if HEAD has advanced past it. Returns ok=false when
// the ring is empty from this cursor's point of view. The shared TAIL
// cell is never touched.
func ReadPrivate(seg *shmseg.Segment, localTail int64) (payload []byte, newTail int64, ok bool) {
	hdr := seg.Header()
	h := hdr.Head()
	if localTail == h {
		return nil, localTail, false
	}
	payload = readSlot(seg, localTail)
	newTail = (localTail + 1) % seg.NumSlots
	return payload, newTail, true
}

// ReadShared implements the multi-consumer path (§4.2.3). Callers must
// hold the segment's file lock for the whole call; only this path
// writes TAIL.
func ReadShared(seg *shmseg.Segment) (payload []byte, ok bool) {
	hdr := seg.Header()
	h := hdr.Head()
	t := hdr.Tail()
	if t == h {
		return nil, false
	}
	payload = readSlot(seg, t)
	hdr.StoreTail((t + 1) % seg.NumSlots)
	return payload, true
}

// Stats returns a point-in-time snapshot of the segment's header.
func Stats(seg *shmseg.Segment) shmseg.Stats {
	hdr := seg.Header()
	h, t, n := hdr.Head(), hdr.Tail(), seg.NumSlots
	used := ((h - t) % n + n) % n
	return shmseg.Stats{
		Head:      h,
		Tail:      t,
		NumSlots:  n,
		SlotSize:  seg.SlotSize,
		MsgCount:  hdr.MsgCount(),
		DropCount: hdr.DropCount(),
		UsedSlots: used,
		FreeSlots: n - used - 1,
	}
}

// RecvPollInterval is used by endpoint-level recv polling (§5: 100 µs).
const RecvPollInterval = 100 * time.Microsecond
