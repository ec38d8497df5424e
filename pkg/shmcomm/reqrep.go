package shmcomm

import (
	"time"

	"github.com/adred-codev/shmcomm/internal/codec"
	"github.com/adred-codev/shmcomm/internal/metrics"
	"github.com/adred-codev/shmcomm/internal/naming"
	"github.com/adred-codev/shmcomm/internal/ring"
	"github.com/adred-codev/shmcomm/internal/shmerr"
	"github.com/adred-codev/shmcomm/internal/shmseg"
)

const (
	reqrepDefaultNumSlots = 16
	reqrepDefaultSlotSize = 8192
)

// Replier is the owning side of a request/reply service: it creates
// both the request and reply segments. One request is expected to
// produce one reply, but the core does not enforce strict alternation.
type Replier struct {
	name     string
	reqSeg   *shmseg.Segment
	repSeg   *shmseg.Segment
	codec    codec.Codec
	reqLocal int64
}

// NewReplier creates both segments for the named service.
func NewReplier(name string, numSlots, slotSize int64, serialization string) (*Replier, error) {
	if numSlots == 0 {
		numSlots = reqrepDefaultNumSlots
	}
	if slotSize == 0 {
		slotSize = reqrepDefaultSlotSize
	}
	c, err := resolveCodec(serialization)
	if err != nil {
		return nil, err
	}
	reqSeg, err := shmseg.Create(naming.ReqSegmentName(name), numSlots, slotSize)
	if err != nil {
		return nil, err
	}
	repSeg, err := shmseg.Create(naming.RepSegmentName(name), numSlots, slotSize)
	if err != nil {
		reqSeg.Close(true)
		return nil, err
	}
	metrics.SegmentsCreated.WithLabelValues("req").Inc()
	metrics.SegmentsCreated.WithLabelValues("rep").Inc()
	return &Replier{name: name, reqSeg: reqSeg, repSeg: repSeg, codec: c}, nil
}

// Recv waits for the next request.
func (r *Replier) Recv(timeout *time.Duration) (any, bool, error) {
	raw, ok, err := r.RecvBytes(timeout)
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := decodeInto(r.codec, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// RecvBytes waits for the next request and returns it undecoded.
func (r *Replier) RecvBytes(timeout *time.Duration) ([]byte, bool, error) {
	payload, ok := naming.PollUntil(func() ([]byte, bool) {
		p, newTail, ok := ring.ReadPrivate(r.reqSeg, r.reqLocal)
		if !ok {
			return nil, false
		}
		r.reqLocal = newTail
		return p, true
	}, timeoutDuration(timeout), ring.RecvPollInterval)
	if ok {
		metrics.MessagesRead.WithLabelValues("req", r.name, "private").Inc()
	}
	return payload, ok, nil
}

// Send writes a reply, non-overwriting (at-least-once).
func (r *Replier) Send(obj any) (bool, error) {
	payload, err := r.codec.Encode(obj)
	if err != nil {
		return false, err
	}
	return r.SendBytes(payload)
}

// SendBytes writes a raw-bytes reply, bypassing the codec.
func (r *Replier) SendBytes(payload []byte) (bool, error) {
	ok, err := ring.Write(r.repSeg, payload, true, -1, false)
	if err != nil {
		if _, full := err.(*shmerr.BufferFullError); full {
			metrics.BufferFullErrors.WithLabelValues("rep", r.name).Inc()
		}
		return false, err
	}
	metrics.MessagesWritten.WithLabelValues("rep", r.name).Inc()
	return ok, nil
}

// Close destroys both segments.
func (r *Replier) Close() error {
	err1 := r.reqSeg.Close(true)
	err2 := r.repSeg.Close(true)
	metrics.SegmentsClosed.WithLabelValues("req", "true").Inc()
	metrics.SegmentsClosed.WithLabelValues("rep", "true").Inc()
	if err1 != nil {
		return err1
	}
	return err2
}

// Requester is the attaching side of a request/reply service.
type Requester struct {
	name     string
	reqSeg   *shmseg.Segment
	repSeg   *shmseg.Segment
	codec    codec.Codec
	repLocal int64
}

// NewRequester attaches to both segments of the named service, waiting
// up to timeoutConnect for the Replier to exist.
func NewRequester(name string, timeoutConnect time.Duration, serialization string) (*Requester, error) {
	c, err := resolveCodec(serialization)
	if err != nil {
		return nil, err
	}
	reqSeg, err := shmseg.Attach(naming.ReqSegmentName(name), timeoutConnect, 0)
	if err != nil {
		metrics.AttachFailures.WithLabelValues("req", "connect").Inc()
		return nil, err
	}
	repSeg, err := shmseg.Attach(naming.RepSegmentName(name), timeoutConnect, 0)
	if err != nil {
		reqSeg.Close(false)
		metrics.AttachFailures.WithLabelValues("rep", "connect").Inc()
		return nil, err
	}
	metrics.SegmentsAttached.WithLabelValues("req").Inc()
	metrics.SegmentsAttached.WithLabelValues("rep").Inc()
	return &Requester{name: name, reqSeg: reqSeg, repSeg: repSeg, codec: c, repLocal: repSeg.Header().Head()}, nil
}

// Send writes a request, non-overwriting (never silently lost).
func (r *Requester) Send(obj any) (bool, error) {
	payload, err := r.codec.Encode(obj)
	if err != nil {
		return false, err
	}
	return r.SendBytes(payload)
}

// SendBytes writes a raw-bytes request, bypassing the codec.
func (r *Requester) SendBytes(payload []byte) (bool, error) {
	ok, err := ring.Write(r.reqSeg, payload, true, -1, false)
	if err != nil {
		if _, full := err.(*shmerr.BufferFullError); full {
			metrics.BufferFullErrors.WithLabelValues("req", r.name).Inc()
		}
		return false, err
	}
	metrics.MessagesWritten.WithLabelValues("req", r.name).Inc()
	return ok, nil
}

// Recv waits for the reply to the last request.
func (r *Requester) Recv(timeout *time.Duration) (any, bool, error) {
	raw, ok, err := r.RecvBytes(timeout)
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := decodeInto(r.codec, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// RecvBytes waits for the reply and returns it undecoded.
func (r *Requester) RecvBytes(timeout *time.Duration) ([]byte, bool, error) {
	payload, ok := naming.PollUntil(func() ([]byte, bool) {
		p, newTail, ok := ring.ReadPrivate(r.repSeg, r.repLocal)
		if !ok {
			return nil, false
		}
		r.repLocal = newTail
		return p, true
	}, timeoutDuration(timeout), ring.RecvPollInterval)
	if ok {
		metrics.MessagesRead.WithLabelValues("rep", r.name, "private").Inc()
	}
	return payload, ok, nil
}

// Request sends obj and waits for exactly one reply, promoting an
// empty result to a TimeoutError.
func (r *Requester) Request(obj any, timeout *time.Duration) (any, error) {
	if _, err := r.Send(obj); err != nil {
		return nil, err
	}
	v, ok, err := r.Recv(timeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		d := timeoutDuration(timeout)
		return nil, &shmerr.TimeoutError{Op: "request", Timeout: d.String()}
	}
	return v, nil
}

// Close detaches from both segments without destroying them.
func (r *Requester) Close() error {
	err1 := r.reqSeg.Close(false)
	err2 := r.repSeg.Close(false)
	metrics.SegmentsClosed.WithLabelValues("req", "false").Inc()
	metrics.SegmentsClosed.WithLabelValues("rep", "false").Inc()
	if err1 != nil {
		return err1
	}
	return err2
}
