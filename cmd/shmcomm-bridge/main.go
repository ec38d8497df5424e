// Command shmcomm-bridge runs a long-lived process with two
// independent flows: a NATS subject fed into a push/pull channel
// (ingest, for consumers to pull work items from), and a pub/sub
// channel fanned out to both a NATS subject and raw WebSocket viewers
// (egress, for publishers broadcasting to external consumers).
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/shmcomm/internal/config"
	"github.com/adred-codev/shmcomm/internal/logging"
	"github.com/adred-codev/shmcomm/internal/metrics"
	"github.com/adred-codev/shmcomm/internal/resourceguard"
	"github.com/adred-codev/shmcomm/pkg/bridge"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides SHMCOMM_LOG_LEVEL)")
	flag.Parse()

	bootLogger := log.New(os.Stdout, "[shmcomm-bridge] ", log.LstdFlags)

	maxProcs := runtime.GOMAXPROCS(0)
	bootLogger.Printf("GOMAXPROCS: %d (via automaxprocs)", maxProcs)

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		bootLogger.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.Print()

	logFormat := logging.FormatJSON
	if cfg.LogFormat == "pretty" {
		logFormat = logging.FormatPretty
	}
	logger := logging.New(logging.Config{Level: logging.ParseLevel(cfg.LogLevel), Format: logFormat})
	logging.InitGlobal(logging.Config{Level: logging.ParseLevel(cfg.LogLevel), Format: logFormat})
	cfg.LogConfig(logger)

	guard := resourceguard.New(logger, cfg.MaxIngestRate, cfg.MaxBroadcastRate, cfg.CPURejectThreshold, cfg.CPUPauseThreshold)
	logger.Info().Int("num_cpu", resourceguard.NumCPU()).Msg("resource guard ready")
	guard.StartCPUMonitoring(cfg.MetricsInterval)
	defer guard.StopCPUMonitoring()

	natsCfg := bridge.NATSConfig{
		URL:             cfg.NATSURL,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
		MaxPingsOut:     3,
		PingInterval:    20 * time.Second,
	}

	ingest, err := bridge.NewNATSIngest(natsCfg, cfg.NATSSubject, cfg.IngestChannel, guard, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start nats ingest")
	}
	defer ingest.Close()

	egress, err := bridge.NewNATSEgress(natsCfg, cfg.BridgeChannel, cfg.NATSSubject+".out", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start nats egress")
	}
	defer egress.Close()

	viewers, err := bridge.NewWSViewerHub(cfg.BridgeChannel, guard, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start websocket viewer hub")
	}
	defer viewers.Close()

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", viewers)
	wsServer := &http.Server{Addr: cfg.WSAddr, Handler: wsMux}
	go func() {
		logger.Info().Str("addr", cfg.WSAddr).Msg("websocket viewer server listening")
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("websocket server stopped unexpectedly")
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()

	ringGauge := metrics.NewCollector(cfg.MetricsInterval, func() {
		st := ingest.PusherStats()
		metrics.RingUsedSlots.WithLabelValues("push", cfg.IngestChannel).Set(float64(st.UsedSlots))
	})
	go ringGauge.Start()
	defer ringGauge.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down bridge")
	wsServer.Close()
	metricsServer.Close()
}
