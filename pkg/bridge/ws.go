package bridge

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/adred-codev/shmcomm/internal/codec"
	"github.com/adred-codev/shmcomm/internal/metrics"
	"github.com/adred-codev/shmcomm/internal/resourceguard"
	"github.com/adred-codev/shmcomm/pkg/shmcomm"
)

const (
	viewerSendBuffer  = 64
	viewerWriteWait   = 10 * time.Second
	viewerPongWait    = 60 * time.Second
	viewerPingPeriod  = (viewerPongWait * 9) / 10
	viewerMaxFailures = 3
)

// viewer is one connected WebSocket reader of a bridged channel.
type viewer struct {
	conn      net.Conn
	send      chan []byte
	attempts  int32
	closeOnce sync.Once
}

// WSViewerHub fans messages from a pub/sub channel out to any number of
// raw WebSocket viewers. A viewer that falls behind gets disconnected
// rather than allowed to slow down the rest of the fan-out.
type WSViewerHub struct {
	sub    *shmcomm.Subscriber
	logger zerolog.Logger
	guard  *resourceguard.Guard

	mu      sync.RWMutex
	viewers map[*viewer]struct{}

	stop chan struct{}
	done chan struct{}
}

// NewWSViewerHub attaches to the named pub/sub channel and starts the
// broadcast loop. ServeHTTP upgrades incoming requests to viewers.
// guard may be nil, in which case broadcasts are never rate limited.
func NewWSViewerHub(channel string, guard *resourceguard.Guard, logger zerolog.Logger) (*WSViewerHub, error) {
	sub, err := shmcomm.NewSubscriber(channel, -1, codec.Msgpack)
	if err != nil {
		return nil, err
	}
	h := &WSViewerHub{
		sub:     sub,
		logger:  logger,
		guard:   guard,
		viewers: make(map[*viewer]struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go h.broadcastLoop()
	return h, nil
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection as a viewer. It never blocks past the upgrade: reads and
// writes happen on their own pump goroutines.
func (h *WSViewerHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Error().Err(err).Str("client_ip", ip).Msg("websocket upgrade failed")
		return
	}

	v := &viewer{conn: conn, send: make(chan []byte, viewerSendBuffer)}
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()

	h.logger.Info().Str("client_ip", ip).Msg("viewer connected")

	go h.writePump(v)
	go h.readPump(v)
}

func (h *WSViewerHub) writePump(v *viewer) {
	writer := bufio.NewWriter(v.conn)
	ticker := time.NewTicker(viewerPingPeriod)
	defer func() {
		ticker.Stop()
		h.removeViewer(v)
	}()

	for {
		select {
		case msg, ok := <-v.send:
			if !ok {
				wsutil.WriteServerMessage(v.conn, ws.OpClose, []byte{})
				return
			}
			v.conn.SetWriteDeadline(time.Now().Add(viewerWriteWait))
			if err := wsutil.WriteServerMessage(writer, ws.OpText, msg); err != nil {
				return
			}
			if err := writer.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(viewerWriteWait))
			if err := wsutil.WriteServerMessage(v.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSViewerHub) readPump(v *viewer) {
	defer h.removeViewer(v)
	v.conn.SetReadDeadline(time.Now().Add(viewerPongWait))
	for {
		_, op, err := wsutil.ReadClientData(v.conn)
		if err != nil {
			return
		}
		v.conn.SetReadDeadline(time.Now().Add(viewerPongWait))
		if op == ws.OpClose {
			return
		}
		// Viewers are read-only; any text/binary frames are discarded.
	}
}

func (h *WSViewerHub) removeViewer(v *viewer) {
	h.mu.Lock()
	delete(h.viewers, v)
	h.mu.Unlock()
	v.closeOnce.Do(func() { v.conn.Close() })
}

// broadcastLoop reads from the attached channel and fans each message
// out to every connected viewer.
func (h *WSViewerHub) broadcastLoop() {
	defer close(h.done)
	timeout := 200 * time.Millisecond
	for {
		select {
		case <-h.stop:
			return
		default:
		}

		payload, ok, err := h.sub.RecvBytes(&timeout)
		if err != nil {
			h.logger.Error().Err(err).Msg("viewer hub recv failed")
			continue
		}
		if !ok {
			continue
		}
		h.broadcast(payload)
	}
}

func (h *WSViewerHub) broadcast(payload []byte) {
	if h.guard != nil && !h.guard.AllowBroadcast() {
		metrics.BridgeRateLimited.WithLabelValues("broadcast").Inc()
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for v := range h.viewers {
		select {
		case v.send <- payload:
			atomic.StoreInt32(&v.attempts, 0)
		default:
			attempts := atomic.AddInt32(&v.attempts, 1)
			if attempts >= viewerMaxFailures {
				h.disconnectSlow(v)
			}
		}
	}
	metrics.BridgeEgressed.WithLabelValues("ws").Inc()
}

func (h *WSViewerHub) disconnectSlow(v *viewer) {
	closeMsg := ws.NewCloseFrameBody(ws.StatusPolicyViolation, "viewer too slow to keep up")
	ws.WriteFrame(v.conn, ws.NewCloseFrame(closeMsg))
	v.closeOnce.Do(func() { v.conn.Close() })
	metrics.BridgeSlowClientDisconnects.WithLabelValues("too_slow").Inc()
}

// Close stops the broadcast loop, detaches the subscriber, and closes
// every connected viewer.
func (h *WSViewerHub) Close() error {
	close(h.stop)
	<-h.done

	h.mu.Lock()
	for v := range h.viewers {
		v.closeOnce.Do(func() { v.conn.Close() })
	}
	h.viewers = nil
	h.mu.Unlock()

	return h.sub.Close()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
