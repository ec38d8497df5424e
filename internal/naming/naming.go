// Package naming centralizes shmcomm's deterministic segment-name
// prefixes and the bounded spin-poll helper every blocking API in this
// module is built on.
package naming

import (
	"strings"
	"time"
)

const (
	pubPrefix  = "shmcomm_pub_"
	pushPrefix = "shmcomm_push_"
	reqPrefix  = "shmcomm_req_"
	repPrefix  = "shmcomm_rep_"

	// SegmentPrefix identifies every name this module creates under
	// /dev/shm, used by ListSegments to filter unrelated entries.
	SegmentPrefix = "shmcomm_"
)

// PubSegmentName returns the publish/subscribe segment name for channel c.
func PubSegmentName(c string) string { return pubPrefix + c }

// PushSegmentName returns the push/pull segment name for channel c.
func PushSegmentName(c string) string { return pushPrefix + c }

// ReqSegmentName returns the request-channel segment name for service c.
func ReqSegmentName(c string) string { return reqPrefix + c }

// RepSegmentName returns the reply-channel segment name for service c.
func RepSegmentName(c string) string { return repPrefix + c }

// SanitizeForLock replaces path separators in a segment name so it can
// be used as a single path component for the file-lock file.
func SanitizeForLock(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_")
	return r.Replace(name)
}

// PollUntil repeatedly calls check until it returns a non-nil result or
// the deadline derived from timeout elapses. timeout < 0 waits forever;
// timeout == 0 makes exactly one attempt. interval controls the sleep
// between attempts. The zero value returned by check must be
// distinguishable from "nothing yet" by the caller (check returns
// (T, true) on success).
func PollUntil[T any](check func() (T, bool), timeout time.Duration, interval time.Duration) (T, bool) {
	var zero T
	if v, ok := check(); ok {
		return v, true
	}
	if timeout == 0 {
		return zero, false
	}
	var deadline time.Time
	forever := timeout < 0
	if !forever {
		deadline = time.Now().Add(timeout)
	}
	for {
		time.Sleep(interval)
		if v, ok := check(); ok {
			return v, true
		}
		if !forever && time.Now().After(deadline) {
			return zero, false
		}
	}
}
