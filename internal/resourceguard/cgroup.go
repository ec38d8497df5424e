package resourceguard

import (
	"os"
	"strconv"
	"strings"
)

// memoryLimit returns the container memory limit in bytes, reading
// cgroup v2 first and falling back to v1. Returns 0 when no limit is
// detected (bare metal, VMs, unconstrained containers).
func memoryLimit() int64 {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		s := strings.TrimSpace(string(data))
		if s != "max" {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil {
				return v
			}
		}
		return 0
	}
	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
			return v
		}
	}
	return 0
}

const (
	runtimeOverheadBytes = 64 * 1024 * 1024
	minRingBudget        = 4 * 1024 * 1024
	defaultRingBudget    = 256 * 1024 * 1024
)

// ringMemoryBudget returns how many bytes this process should let its
// bridge ring buffers consume, derived from the container memory limit
// minus a fixed runtime overhead reservation. Falls back to a
// conservative default when no cgroup limit is detected.
func ringMemoryBudget(limitBytes int64) int64 {
	if limitBytes == 0 {
		return defaultRingBudget
	}
	budget := limitBytes - runtimeOverheadBytes
	if budget < minRingBudget {
		budget = limitBytes / 2
	}
	if budget < minRingBudget {
		budget = minRingBudget
	}
	return budget
}
