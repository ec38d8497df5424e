// Command shmcomm-bench measures round-trip latency and throughput for
// a single-producer single-consumer publish/subscribe loopback on this
// host. It is informational: it prints measurements, it does not
// assert against them.
package main

import (
	"flag"
	"fmt"
	"sort"
	"time"

	"github.com/adred-codev/shmcomm/internal/codec"
	"github.com/adred-codev/shmcomm/pkg/shmcomm"
)

func main() {
	channel := flag.String("channel", "bench", "channel name")
	count := flag.Int("count", 100000, "number of messages to send")
	payloadSize := flag.Int("payload", 64, "payload size in bytes")
	flag.Parse()

	pub, err := shmcomm.NewPublisher(*channel, 1024, 4096, codec.PickleEquivalent)
	if err != nil {
		fmt.Printf("NewPublisher: %v\n", err)
		return
	}
	defer pub.Close()

	sub, err := shmcomm.NewSubscriber(*channel, time.Second, codec.PickleEquivalent)
	if err != nil {
		fmt.Printf("NewSubscriber: %v\n", err)
		return
	}
	defer sub.Close()

	payload := make([]byte, *payloadSize)
	latencies := make([]time.Duration, 0, *count)

	start := time.Now()
	for i := 0; i < *count; i++ {
		sendTime := time.Now()
		if _, err := pub.SendBytes(payload); err != nil {
			fmt.Printf("send error at %d: %v\n", i, err)
			return
		}

		timeout := 100 * time.Millisecond
		_, ok, err := sub.RecvBytes(&timeout)
		if err != nil {
			fmt.Printf("recv error at %d: %v\n", i, err)
			return
		}
		if !ok {
			fmt.Printf("recv timed out at %d\n", i)
			continue
		}
		latencies = append(latencies, time.Since(sendTime))
	}
	elapsed := time.Since(start)

	if len(latencies) == 0 {
		fmt.Println("no round trips completed")
		return
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	median := latencies[len(latencies)/2]
	p99 := latencies[(len(latencies)*99)/100]
	throughput := float64(len(latencies)) / elapsed.Seconds()

	fmt.Printf("messages:   %d\n", len(latencies))
	fmt.Printf("payload:    %d bytes\n", *payloadSize)
	fmt.Printf("elapsed:    %s\n", elapsed)
	fmt.Printf("throughput: %.0f msg/s\n", throughput)
	fmt.Printf("median rtt: %s\n", median)
	fmt.Printf("p99 rtt:    %s\n", p99)
}
