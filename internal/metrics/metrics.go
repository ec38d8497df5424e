// Package metrics declares the Prometheus instrumentation surface for
// segment lifecycle, ring traffic, endpoint behavior, and bridge
// traffic, mirroring the teacher's package-level metric vars registered
// in an init() block.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SegmentsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_segment_created_total",
		Help: "Segments created, by pattern prefix.",
	}, []string{"pattern"})

	SegmentsAttached = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_segment_attached_total",
		Help: "Segments successfully attached, by pattern prefix.",
	}, []string{"pattern"})

	SegmentsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_segment_closed_total",
		Help: "Segments closed, by pattern prefix and destroy flag.",
	}, []string{"pattern", "destroyed"})

	AttachFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_attach_failures_total",
		Help: "Attach attempts that ended in a ConnectionError.",
	}, []string{"pattern", "reason"})

	MessagesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_ring_messages_written_total",
		Help: "Messages committed to a ring buffer.",
	}, []string{"pattern", "channel"})

	MessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_ring_drop_total",
		Help: "Messages dropped by a non-blocking write when the ring was full.",
	}, []string{"pattern", "channel", "reason"})

	MessagesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_ring_messages_read_total",
		Help: "Messages read from a ring buffer, by consumer discipline.",
	}, []string{"pattern", "channel", "discipline"})

	BufferFullErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_buffer_full_errors_total",
		Help: "Blocking writes that timed out with the ring full.",
	}, []string{"pattern", "channel"})

	FileLockWaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shmcomm_filelock_wait_seconds",
		Help:    "Time spent waiting to acquire a segment's file lock.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
	}, []string{"segment"})

	RingUsedSlots = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shmcomm_ring_used_slots",
		Help: "Most recently observed used-slot count for a segment.",
	}, []string{"pattern", "channel"})

	BridgeIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_bridge_ingested_total",
		Help: "Messages ingested by a bridge from an external transport.",
	}, []string{"transport"})

	BridgeEgressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_bridge_egressed_total",
		Help: "Messages egressed by a bridge to an external transport.",
	}, []string{"transport"})

	BridgeRateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_bridge_rate_limited_total",
		Help: "Bridge events rejected by the rate limiter.",
	}, []string{"direction"})

	BridgeSlowClientDisconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmcomm_bridge_ws_slow_client_disconnects_total",
		Help: "WebSocket viewers disconnected for falling behind.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		SegmentsCreated,
		SegmentsAttached,
		SegmentsClosed,
		AttachFailures,
		MessagesWritten,
		MessagesDropped,
		MessagesRead,
		BufferFullErrors,
		FileLockWaitSeconds,
		RingUsedSlots,
		BridgeIngested,
		BridgeEgressed,
		BridgeRateLimited,
		BridgeSlowClientDisconnects,
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler { return promhttp.Handler() }

// Collector periodically samples ring-buffer gauges (used-slot count)
// that aren't naturally event-driven.
type Collector struct {
	interval time.Duration
	sample   func()
	stop     chan struct{}
}

// NewCollector builds a Collector that calls sample every interval
// until Stop is called.
func NewCollector(interval time.Duration, sample func()) *Collector {
	return &Collector{interval: interval, sample: sample, stop: make(chan struct{})}
}

// Start runs the collector loop in the current goroutine until Stop is
// called; callers typically invoke it with `go collector.Start()`.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sample()
		case <-c.stop:
			return
		}
	}
}

// Stop ends the collector loop.
func (c *Collector) Stop() { close(c.stop) }
