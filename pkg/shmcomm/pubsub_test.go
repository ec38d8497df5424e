package shmcomm

import (
	"fmt"
	"testing"
	"time"

	"github.com/adred-codev/shmcomm/internal/codec"
)

func chanName(t *testing.T) string {
	return fmt.Sprintf("test_%s_%d", t.Name(), time.Now().UnixNano())
}

func dur(d time.Duration) *time.Duration { return &d }

func TestPubSubBasic(t *testing.T) {
	name := chanName(t)
	pub, err := NewPublisher(name, 0, 0, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewSubscriber(name, time.Second, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	defer sub.Close()

	if ok, err := pub.Send(map[string]any{"v": int64(42)}, false, nil); err != nil || !ok {
		t.Fatalf("Send: ok=%v err=%v", ok, err)
	}

	v, ok, err := sub.Recv(dur(time.Second))
	if err != nil || !ok {
		t.Fatalf("Recv: ok=%v err=%v", ok, err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["v"] != int64(42) {
		t.Fatalf("Recv returned %#v, want map with v=42", v)
	}
}

func TestPubSubLateSubscriberSkipsBacklog(t *testing.T) {
	name := chanName(t)
	pub, err := NewPublisher(name, 0, 0, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close()

	pub.Send("old1", false, nil)
	pub.Send("old2", false, nil)

	sub, err := NewSubscriber(name, time.Second, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	defer sub.Close()

	pub.Send("new", false, nil)

	v, ok, err := sub.Recv(dur(time.Second))
	if err != nil || !ok {
		t.Fatalf("Recv: ok=%v err=%v", ok, err)
	}
	if v != "new" {
		t.Fatalf("Recv = %v, want \"new\"", v)
	}
}

func TestSubscriberRecvBytesRoundTrip(t *testing.T) {
	name := chanName(t)
	pub, err := NewPublisher(name, 0, 0, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewSubscriber(name, time.Second, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	defer sub.Close()

	raw := []byte{1, 2, 3, 4}
	if ok, err := pub.SendBytes(raw); err != nil || !ok {
		t.Fatalf("SendBytes: ok=%v err=%v", ok, err)
	}
	got, ok, err := sub.RecvBytes(dur(time.Second))
	if err != nil || !ok {
		t.Fatalf("RecvBytes: ok=%v err=%v", ok, err)
	}
	if string(got) != string(raw) {
		t.Fatalf("RecvBytes = %v, want %v", got, raw)
	}
}

func TestSubscriberRecvTimesOutWhenEmpty(t *testing.T) {
	name := chanName(t)
	pub, err := NewPublisher(name, 0, 0, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewSubscriber(name, time.Second, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	defer sub.Close()

	_, ok, err := sub.Recv(dur(20 * time.Millisecond))
	if err != nil {
		t.Fatalf("Recv returned an error on timeout: %v", err)
	}
	if ok {
		t.Fatal("expected no message")
	}
}
