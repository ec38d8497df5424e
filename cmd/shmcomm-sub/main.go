// Command shmcomm-sub is a minimal example subscriber: it attaches to
// the named channel and prints every message it receives until
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
	connectTimeout := flag.Duration("connect-timeout", 5*time.Second, "time to wait for the publisher to exist")
	flag.Parse()

	logger := log.New(os.Stdout, "[shmcomm-sub] ", log.LstdFlags)

	sub, err := shmcomm.NewSubscriber(*channel, *connectTimeout, codec.PickleEquivalent)
	if err != nil {
		logger.Fatalf("NewSubscriber: %v", err)
	}
	defer sub.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		<-sigCh
		close(done)
	}()

	timeout := 200 * time.Millisecond
	var received int64
	for {
		select {
		case <-done:
			logger.Printf("received %d messages, shutting down", received)
			return
		default:
		}

		v, ok, err := sub.Recv(&timeout)
		if err != nil {
			logger.Printf("recv error: %v", err)
			continue
		}
		if !ok {
			continue
		}
		received++
		logger.Printf("received: %#v", v)
	}
}
