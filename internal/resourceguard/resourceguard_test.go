package resourceguard

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestGuard(cpuReject, cpuPause float64) *Guard {
	return New(zerolog.Nop(), 1000, 1000, cpuReject, cpuPause)
}

func TestShouldRejectAndPauseOnCPU(t *testing.T) {
	g := newTestGuard(75.0, 80.0)

	g.currentCPU.Store(50.0)
	if g.ShouldRejectOnCPU() {
		t.Fatal("50%% should not trip the reject threshold")
	}
	if g.ShouldPauseOnCPU() {
		t.Fatal("50%% should not trip the pause threshold")
	}

	g.currentCPU.Store(76.0)
	if !g.ShouldRejectOnCPU() {
		t.Fatal("76%% should trip the reject threshold")
	}
	if g.ShouldPauseOnCPU() {
		t.Fatal("76%% should not yet trip the pause threshold")
	}

	g.currentCPU.Store(81.0)
	if !g.ShouldRejectOnCPU() || !g.ShouldPauseOnCPU() {
		t.Fatal("81%% should trip both the reject and pause thresholds")
	}
}

func TestAllowIngestAndBroadcastGrantFirstToken(t *testing.T) {
	g := newTestGuard(100, 100)
	if !g.AllowIngest() {
		t.Fatal("first ingest token should be available")
	}
	if !g.AllowBroadcast() {
		t.Fatal("first broadcast token should be available")
	}
}

func TestStartStopCPUMonitoringIsSafe(t *testing.T) {
	g := newTestGuard(75.0, 80.0)
	g.StartCPUMonitoring(time.Hour) // won't fire before Stop
	g.StopCPUMonitoring()
}
