// Package shmcomm implements the user-facing pattern endpoints:
// Publisher/Subscriber, Pusher/Puller, Replier/Requester. Each endpoint
// is a scoped resource — acquired on construction, released by Close —
// composing a segment, a ring-buffer discipline, an optional codec, and
// for shared-tail consumers a file lock.
package shmcomm

import (
	"time"

	"github.com/adred-codev/shmcomm/internal/codec"
	"github.com/adred-codev/shmcomm/internal/shmseg"
)

// Stats mirrors a ring buffer's point-in-time snapshot, extended with
// the endpoint-local fields each pattern adds.
type Stats struct {
	shmseg.Stats
	LocalTail int64 `json:"local_tail,omitempty"`
}

func resolveCodec(method string) (codec.Codec, error) { return codec.ForMethod(method) }

func decodeInto(c codec.Codec, data []byte) (any, error) {
	var out any
	if err := c.Decode(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// timeoutDuration converts a caller-supplied timeout pointer into the
// duration naming.PollUntil/ring.Write expect: nil means wait forever
// (represented as -1), 0 means one attempt, >0 means that duration.
func timeoutDuration(timeout *time.Duration) time.Duration {
	if timeout == nil {
		return -1
	}
	return *timeout
}
