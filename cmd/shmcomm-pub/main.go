// Command shmcomm-pub is a minimal example publisher: it sends a
// counter message on the named channel once per interval until
// interrupted.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adred-codev/shmcomm/internal/codec"
	"github.com/adred-codev/shmcomm/pkg/shmcomm"
)

func main() {
	channel := flag.String("channel", "demo", "channel name")
	interval := flag.Duration("interval", 200*time.Millisecond, "send interval")
	flag.Parse()

	logger := log.New(os.Stdout, "[shmcomm-pub] ", log.LstdFlags)

	pub, err := shmcomm.NewPublisher(*channel, 0, 0, codec.PickleEquivalent)
	if err != nil {
		logger.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var seq int64
	for {
		select {
		case <-ticker.C:
			seq++
			ok, err := pub.Send(map[string]any{"seq": seq, "ts": time.Now().UnixNano()}, false, nil)
			if err != nil {
				logger.Printf("send error: %v", err)
				continue
			}
			if !ok {
				logger.Printf("send rejected at seq=%d", seq)
			}
		case <-sigCh:
			logger.Printf("sent %d messages, shutting down", seq)
			return
		}
	}
}
