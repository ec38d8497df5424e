// Package resourceguard gates bridge ingestion and broadcast rates
// against container CPU/memory limits, mirroring the teacher's
// cgroup-aware connection gating but applied to shmcomm's NATS/WS
// bridge traffic instead of WebSocket connection counts.
package resourceguard

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/time/rate"
)

// Guard gates bridge traffic against configured rate limits and
// exposes current CPU/memory posture for shed-load decisions.
type Guard struct {
	logger zerolog.Logger

	ingestLimiter    *rate.Limiter
	broadcastLimiter *rate.Limiter

	cpuRejectThreshold float64
	cpuPauseThreshold  float64

	ringMemoryBudget int64

	currentCPU atomic.Value // float64, updated by StartCPUMonitoring
	stopCPU    chan struct{}
}

// New builds a Guard from the configured rate and CPU thresholds.
func New(logger zerolog.Logger, maxIngestRate, maxBroadcastRate int, cpuReject, cpuPause float64) *Guard {
	limit := memoryLimit()
	g := &Guard{
		logger:             logger,
		ingestLimiter:      rate.NewLimiter(rate.Limit(maxIngestRate), maxIngestRate*2),
		broadcastLimiter:   rate.NewLimiter(rate.Limit(maxBroadcastRate), maxBroadcastRate*2),
		cpuRejectThreshold: cpuReject,
		cpuPauseThreshold:  cpuPause,
		ringMemoryBudget:   ringMemoryBudget(limit),
	}
	g.currentCPU.Store(0.0)
	logger.Info().
		Int64("ring_memory_budget_bytes", g.ringMemoryBudget).
		Int("max_ingest_rate", maxIngestRate).
		Int("max_broadcast_rate", maxBroadcastRate).
		Float64("cpu_reject_threshold", cpuReject).
		Float64("cpu_pause_threshold", cpuPause).
		Msg("resource guard initialized")
	return g
}

// AllowIngest reports whether a bridge-ingest event may proceed now,
// consuming one token from the ingest rate limiter if so.
func (g *Guard) AllowIngest() bool { return g.ingestLimiter.Allow() }

// AllowBroadcast reports whether a broadcast event may proceed now,
// consuming one token from the broadcast rate limiter if so.
func (g *Guard) AllowBroadcast() bool { return g.broadcastLimiter.Allow() }

// RingMemoryBudget returns the byte budget available for this
// process's shared-memory ring buffers.
func (g *Guard) RingMemoryBudget() int64 { return g.ringMemoryBudget }

// CPUPercent samples current host CPU usage over a short window. It
// is a blocking call (~100ms) and should not be called on a hot path;
// StartCPUMonitoring is the hot-path-safe way to read it.
func CPUPercent() (float64, error) {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, fmt.Errorf("sample cpu: %w", err)
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu samples returned")
	}
	return percents[0], nil
}

// StartCPUMonitoring samples host CPU usage every interval in its own
// goroutine and caches the result, so ShouldRejectOnCPU/ShouldPauseOnCPU
// can be called from a hot path without paying the ~100ms sampling
// cost per call. Call StopCPUMonitoring to end the loop.
func (g *Guard) StartCPUMonitoring(interval time.Duration) {
	g.stopCPU = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				percent, err := CPUPercent()
				if err != nil {
					g.logger.Warn().Err(err).Msg("cpu sample failed")
					continue
				}
				g.currentCPU.Store(percent)
			case <-g.stopCPU:
				return
			}
		}
	}()
}

// StopCPUMonitoring ends the StartCPUMonitoring loop. No-op if it was
// never started.
func (g *Guard) StopCPUMonitoring() {
	if g.stopCPU != nil {
		close(g.stopCPU)
	}
}

// CurrentCPU returns the most recently sampled host CPU percentage.
func (g *Guard) CurrentCPU() float64 { return g.currentCPU.Load().(float64) }

// ShouldRejectOnCPU reports whether new bridge work should be rejected
// given the most recently sampled CPU usage and the configured reject
// threshold.
func (g *Guard) ShouldRejectOnCPU() bool {
	return g.CurrentCPU() >= g.cpuRejectThreshold
}

// ShouldPauseOnCPU reports whether ingestion should pause entirely.
func (g *Guard) ShouldPauseOnCPU() bool {
	return g.CurrentCPU() >= g.cpuPauseThreshold
}

// NumCPU returns the host's logical CPU count, used to log allocation
// alongside automaxprocs' GOMAXPROCS tuning in cmd/shmcomm-bridge.
func NumCPU() int { return runtime.NumCPU() }
