package shmcomm

import (
	"time"

	"github.com/adred-codev/shmcomm/internal/codec"
	"github.com/adred-codev/shmcomm/internal/metrics"
	"github.com/adred-codev/shmcomm/internal/naming"
	"github.com/adred-codev/shmcomm/internal/ring"
	"github.com/adred-codev/shmcomm/internal/shmseg"
)

const (
	pubsubDefaultNumSlots = 64
	pubsubDefaultSlotSize = 4096
)

// Publisher is the owning, single-producer side of a publish/subscribe
// channel. It never blocks: Send always overwrites, silently losing
// messages to slow subscribers when the ring wraps.
type Publisher struct {
	name  string
	seg   *shmseg.Segment
	codec codec.Codec
}

// NewPublisher creates the named channel's segment. numSlots/slotSize
// of 0 take the pattern's default geometry (64x4096). serialization is
// one of codec.PickleEquivalent or codec.Msgpack.
func NewPublisher(name string, numSlots, slotSize int64, serialization string) (*Publisher, error) {
	if numSlots == 0 {
		numSlots = pubsubDefaultNumSlots
	}
	if slotSize == 0 {
		slotSize = pubsubDefaultSlotSize
	}
	c, err := resolveCodec(serialization)
	if err != nil {
		return nil, err
	}
	segName := naming.PubSegmentName(name)
	seg, err := shmseg.Create(segName, numSlots, slotSize)
	if err != nil {
		return nil, err
	}
	metrics.SegmentsCreated.WithLabelValues("pub").Inc()
	return &Publisher{name: name, seg: seg, codec: c}, nil
}

// Send serializes obj and writes it with overwrite semantics. block and
// timeout are accepted for API-shape parity with the source but are
// ignored: Publisher.Send always overwrites and never blocks.
func (p *Publisher) Send(obj any, block bool, timeout *time.Duration) (bool, error) {
	payload, err := p.codec.Encode(obj)
	if err != nil {
		return false, err
	}
	return p.SendBytes(payload)
}

// SendBytes writes raw bytes, bypassing the codec.
func (p *Publisher) SendBytes(payload []byte) (bool, error) {
	ok, err := ring.Write(p.seg, payload, false, 0, true)
	if err != nil {
		return false, err
	}
	metrics.MessagesWritten.WithLabelValues("pub", p.name).Inc()
	return ok, nil
}

// Stats returns a snapshot of the channel's ring buffer.
func (p *Publisher) Stats() Stats { return Stats{Stats: ring.Stats(p.seg)} }

// Close destroys the channel's segment.
func (p *Publisher) Close() error {
	metrics.SegmentsClosed.WithLabelValues("pub", "true").Inc()
	return p.seg.Close(true)
}

// Subscriber is an attaching, read-only side of a publish/subscribe
// channel. Its cursor starts at the current HEAD, so historical
// backlog is skipped; multiple independent subscribers may attach to
// the same channel without coordination.
type Subscriber struct {
	name      string
	seg       *shmseg.Segment
	codec     codec.Codec
	localTail int64
}

// NewSubscriber attaches to the named channel, waiting up to
// timeoutConnect for the Publisher to exist. timeoutConnect < 0 waits
// forever.
func NewSubscriber(name string, timeoutConnect time.Duration, serialization string) (*Subscriber, error) {
	c, err := resolveCodec(serialization)
	if err != nil {
		return nil, err
	}
	segName := naming.PubSegmentName(name)
	seg, err := shmseg.Attach(segName, timeoutConnect, 0)
	if err != nil {
		metrics.AttachFailures.WithLabelValues("pub", "connect").Inc()
		return nil, err
	}
	metrics.SegmentsAttached.WithLabelValues("pub").Inc()
	return &Subscriber{name: name, seg: seg, codec: c, localTail: seg.Header().Head()}, nil
}

// Recv waits for the next message. timeout == nil waits forever,
// timeout pointing at 0 makes a single attempt.
func (s *Subscriber) Recv(timeout *time.Duration) (any, bool, error) {
	raw, ok := s.recvBytesPoll(timeout)
	if !ok {
		return nil, false, nil
	}
	v, err := decodeInto(s.codec, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// RecvBytes waits for the next message and returns it undecoded.
func (s *Subscriber) RecvBytes(timeout *time.Duration) ([]byte, bool, error) {
	raw, ok := s.recvBytesPoll(timeout)
	return raw, ok, nil
}

func (s *Subscriber) recvBytesPoll(timeout *time.Duration) ([]byte, bool) {
	payload, ok := naming.PollUntil(func() ([]byte, bool) {
		p, newTail, ok := ring.ReadPrivate(s.seg, s.localTail)
		if !ok {
			return nil, false
		}
		s.localTail = newTail
		return p, true
	}, timeoutDuration(timeout), ring.RecvPollInterval)
	if ok {
		metrics.MessagesRead.WithLabelValues("pub", s.name, "private").Inc()
	}
	return payload, ok
}

// Stats returns a snapshot of the channel's ring buffer plus this
// subscriber's local cursor.
func (s *Subscriber) Stats() Stats {
	return Stats{Stats: ring.Stats(s.seg), LocalTail: s.localTail}
}

// Close detaches from the segment without destroying it.
func (s *Subscriber) Close() error {
	metrics.SegmentsClosed.WithLabelValues("pub", "false").Inc()
	return s.seg.Close(false)
}
