// Package bridge connects shmcomm ring buffers to the outside world:
// NATS subjects in one direction, raw WebSocket viewers in the other.
// Neither bridge direction touches the ring protocol directly; both
// go through the pkg/shmcomm endpoint types.
package bridge

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adred-codev/shmcomm/internal/codec"
	"github.com/adred-codev/shmcomm/internal/metrics"
	"github.com/adred-codev/shmcomm/internal/resourceguard"
	"github.com/adred-codev/shmcomm/pkg/shmcomm"
)

// NATSConfig controls the connection options used by both bridge
// directions.
type NATSConfig struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
	MaxPingsOut     int
	PingInterval    time.Duration
}

func dialNATS(cfg NATSConfig, logger zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter),
		nats.MaxPingsOutstanding(cfg.MaxPingsOut),
		nats.PingInterval(cfg.PingInterval),
		nats.ConnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats connected")
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(c *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("nats error")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}
	return conn, nil
}

// NATSIngest subscribes to a NATS subject and pushes every message it
// receives into a push/pull channel via a Pusher. Sends never block:
// a slow or absent consumer causes the ring's own drop accounting to
// take over, the subscription itself never backs up.
type NATSIngest struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	pusher  *shmcomm.Pusher
	logger  zerolog.Logger
	guard   *resourceguard.Guard
	subject string
}

// NewNATSIngest dials NATS, creates the given push channel's segment
// through a Pusher, and subscribes to subject. Close stops the subscription, the connection
// it owns, and the pusher.
func NewNATSIngest(cfg NATSConfig, subject, channel string, guard *resourceguard.Guard, logger zerolog.Logger) (*NATSIngest, error) {
	conn, err := dialNATS(cfg, logger)
	if err != nil {
		return nil, err
	}

	if guard != nil {
		if requested := shmcomm.PusherDefaultBytes(); requested > guard.RingMemoryBudget() {
			logger.Warn().
				Int64("requested_bytes", requested).
				Int64("ring_memory_budget_bytes", guard.RingMemoryBudget()).
				Str("channel", channel).
				Msg("ingest segment geometry exceeds ring memory budget")
		}
	}

	pusher, err := shmcomm.NewPusher(channel, 0, 0, codec.PickleEquivalent)
	if err != nil {
		conn.Close()
		return nil, err
	}

	ing := &NATSIngest{conn: conn, pusher: pusher, logger: logger, guard: guard, subject: subject}

	sub, err := conn.Subscribe(subject, ing.onMessage)
	if err != nil {
		pusher.Close()
		conn.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	ing.sub = sub

	logger.Info().Str("subject", subject).Str("channel", channel).Msg("nats ingest started")
	return ing, nil
}

func (ing *NATSIngest) onMessage(msg *nats.Msg) {
	if ing.guard != nil {
		if ing.guard.ShouldPauseOnCPU() {
			metrics.BridgeRateLimited.WithLabelValues("ingest_cpu_pause").Inc()
			return
		}
		if ing.guard.ShouldRejectOnCPU() {
			metrics.BridgeRateLimited.WithLabelValues("ingest_cpu_reject").Inc()
			return
		}
		if !ing.guard.AllowIngest() {
			metrics.BridgeRateLimited.WithLabelValues("ingest").Inc()
			return
		}
	}

	ok, err := ing.pusher.SendBytes(msg.Data, false, nil)
	if err != nil {
		ing.logger.Error().Err(err).Str("subject", ing.subject).Msg("ingest push failed")
		return
	}
	if !ok {
		return
	}
	metrics.BridgeIngested.WithLabelValues("nats").Inc()
}

// PusherStats returns a snapshot of the ingest channel's ring buffer,
// used by the bridge process to sample the ring-used-slots gauge.
func (ing *NATSIngest) PusherStats() shmcomm.Stats { return ing.pusher.Stats() }

// Close tears down the subscription, NATS connection, and pusher.
func (ing *NATSIngest) Close() error {
	if ing.sub != nil {
		ing.sub.Unsubscribe()
	}
	if ing.conn != nil {
		ing.conn.Close()
	}
	return ing.pusher.Close()
}

// NATSEgress attaches a Subscriber to a pub/sub channel and republishes
// every message it receives onto a NATS subject.
type NATSEgress struct {
	conn    *nats.Conn
	sub     *shmcomm.Subscriber
	logger  zerolog.Logger
	subject string
	stop    chan struct{}
	done    chan struct{}
}

// NewNATSEgress dials NATS, attaches the given pub/sub channel, and
// starts a goroutine that forwards every received message to subject.
func NewNATSEgress(cfg NATSConfig, channel, subject string, logger zerolog.Logger) (*NATSEgress, error) {
	conn, err := dialNATS(cfg, logger)
	if err != nil {
		return nil, err
	}

	sub, err := shmcomm.NewSubscriber(channel, -1, codec.PickleEquivalent)
	if err != nil {
		conn.Close()
		return nil, err
	}

	eg := &NATSEgress{
		conn:    conn,
		sub:     sub,
		logger:  logger,
		subject: subject,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go eg.run()

	logger.Info().Str("channel", channel).Str("subject", subject).Msg("nats egress started")
	return eg, nil
}

func (eg *NATSEgress) run() {
	defer close(eg.done)
	timeout := 200 * time.Millisecond
	for {
		select {
		case <-eg.stop:
			return
		default:
		}

		payload, ok, err := eg.sub.RecvBytes(&timeout)
		if err != nil {
			eg.logger.Error().Err(err).Msg("egress recv failed")
			continue
		}
		if !ok {
			continue
		}
		if err := eg.conn.Publish(eg.subject, payload); err != nil {
			eg.logger.Error().Err(err).Str("subject", eg.subject).Msg("egress publish failed")
			continue
		}
		metrics.BridgeEgressed.WithLabelValues("nats").Inc()
	}
}

// Close stops the forwarding goroutine and releases the NATS
// connection and the subscriber.
func (eg *NATSEgress) Close() error {
	close(eg.stop)
	<-eg.done
	eg.conn.Close()
	return eg.sub.Close()
}
