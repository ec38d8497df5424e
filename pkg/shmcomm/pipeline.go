package shmcomm

import (
	"time"

	"github.com/adred-codev/shmcomm/internal/codec"
	"github.com/adred-codev/shmcomm/internal/filelock"
	"github.com/adred-codev/shmcomm/internal/metrics"
	"github.com/adred-codev/shmcomm/internal/naming"
	"github.com/adred-codev/shmcomm/internal/ring"
	"github.com/adred-codev/shmcomm/internal/shmerr"
	"github.com/adred-codev/shmcomm/internal/shmseg"
)

const (
	pipelineDefaultNumSlots = 128
	pipelineDefaultSlotSize = 4096
)

// PusherDefaultBytes returns the shared-memory footprint of a Pusher
// segment created with the default geometry (numSlots/slotSize of 0),
// so callers can check it against a resourceguard.Guard's
// RingMemoryBudget before creating one.
func PusherDefaultBytes() int64 {
	return shmseg.HeaderSize + pipelineDefaultNumSlots*pipelineDefaultSlotSize
}

// Pusher is the owning, single-producer side of a push/pull work
// queue. Send is non-overwriting and blocks by default, matching a
// work queue's no-loss expectation.
type Pusher struct {
	name  string
	seg   *shmseg.Segment
	codec codec.Codec
}

// NewPusher creates the named channel's segment.
func NewPusher(name string, numSlots, slotSize int64, serialization string) (*Pusher, error) {
	if numSlots == 0 {
		numSlots = pipelineDefaultNumSlots
	}
	if slotSize == 0 {
		slotSize = pipelineDefaultSlotSize
	}
	c, err := resolveCodec(serialization)
	if err != nil {
		return nil, err
	}
	segName := naming.PushSegmentName(name)
	seg, err := shmseg.Create(segName, numSlots, slotSize)
	if err != nil {
		return nil, err
	}
	metrics.SegmentsCreated.WithLabelValues("push").Inc()
	return &Pusher{name: name, seg: seg, codec: c}, nil
}

// Send writes obj non-overwriting. block defaults to true (callers
// wanting non-blocking semantics pass block=false explicitly); timeout
// nil waits forever for space.
func (p *Pusher) Send(obj any, block bool, timeout *time.Duration) (bool, error) {
	payload, err := p.codec.Encode(obj)
	if err != nil {
		return false, err
	}
	return p.sendBytes(payload, block, timeout)
}

// SendBytes writes raw bytes, bypassing the codec.
func (p *Pusher) SendBytes(payload []byte, block bool, timeout *time.Duration) (bool, error) {
	return p.sendBytes(payload, block, timeout)
}

func (p *Pusher) sendBytes(payload []byte, block bool, timeout *time.Duration) (bool, error) {
	ok, err := ring.Write(p.seg, payload, block, timeoutDuration(timeout), false)
	if err != nil {
		if _, full := err.(*shmerr.BufferFullError); full {
			metrics.BufferFullErrors.WithLabelValues("push", p.name).Inc()
		}
		return false, err
	}
	if ok {
		metrics.MessagesWritten.WithLabelValues("push", p.name).Inc()
	} else {
		metrics.MessagesDropped.WithLabelValues("push", p.name, "non_blocking_full").Inc()
	}
	return ok, nil
}

// Stats returns a snapshot of the channel's ring buffer.
func (p *Pusher) Stats() Stats { return Stats{Stats: ring.Stats(p.seg)} }

// Close destroys the channel's segment.
func (p *Pusher) Close() error {
	metrics.SegmentsClosed.WithLabelValues("push", "true").Inc()
	return p.seg.Close(true)
}

// Puller is an attaching, shared-tail consumer of a push/pull queue:
// it claims messages under the channel's file lock so multiple
// Pullers compete, each message delivered to exactly one.
type Puller struct {
	name  string
	seg   *shmseg.Segment
	codec codec.Codec
	lock  *filelock.Lock
}

// NewPuller attaches to the named channel, waiting up to
// timeoutConnect for the Pusher to exist.
func NewPuller(name string, timeoutConnect time.Duration, serialization string) (*Puller, error) {
	c, err := resolveCodec(serialization)
	if err != nil {
		return nil, err
	}
	segName := naming.PushSegmentName(name)
	seg, err := shmseg.Attach(segName, timeoutConnect, 0)
	if err != nil {
		metrics.AttachFailures.WithLabelValues("push", "connect").Inc()
		return nil, err
	}
	metrics.SegmentsAttached.WithLabelValues("push").Inc()
	return &Puller{name: name, seg: seg, codec: c, lock: filelock.New(segName)}, nil
}

// Recv waits for the next message, claiming it under the shared file
// lock so competing Pullers never receive the same message.
func (p *Puller) Recv(timeout *time.Duration) (any, bool, error) {
	raw, ok, err := p.RecvBytes(timeout)
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := decodeInto(p.codec, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// RecvBytes waits for the next message and returns it undecoded.
func (p *Puller) RecvBytes(timeout *time.Duration) ([]byte, bool, error) {
	payload, ok := naming.PollUntil(func() ([]byte, bool) {
		var out []byte
		var found bool
		_ = filelock.WithLock(p.lock, 0, func() error {
			v, claimed := ring.ReadShared(p.seg)
			if claimed {
				out, found = v, true
			}
			return nil
		})
		return out, found
	}, timeoutDuration(timeout), ring.RecvPollInterval)
	if ok {
		metrics.MessagesRead.WithLabelValues("push", p.name, "shared_tail").Inc()
	}
	return payload, ok, nil
}

// Stats returns a snapshot of the channel's ring buffer.
func (p *Puller) Stats() Stats { return Stats{Stats: ring.Stats(p.seg)} }

// Close detaches from the segment without destroying it.
func (p *Puller) Close() error {
	metrics.SegmentsClosed.WithLabelValues("push", "false").Inc()
	return p.seg.Close(false)
}
