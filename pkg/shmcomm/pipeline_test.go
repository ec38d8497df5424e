package shmcomm

import (
	"sort"
	"testing"
	"time"

	"github.com/adred-codev/shmcomm/internal/codec"
)

func TestPushPullRingFullNonBlocking(t *testing.T) {
	name := chanName(t)
	pusher, err := NewPusher(name, 8, 128, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewPusher: %v", err)
	}
	defer pusher.Close()

	for i := 0; i < 7; i++ {
		ok, err := pusher.SendBytes([]byte{byte(i)}, false, nil)
		if err != nil || !ok {
			t.Fatalf("send %d: ok=%v err=%v", i, ok, err)
		}
	}

	ok, err := pusher.SendBytes([]byte{7}, false, nil)
	if err != nil {
		t.Fatalf("8th send errored: %v", err)
	}
	if ok {
		t.Fatal("8th send should have been rejected, ring is full")
	}
	if st := pusher.Stats(); st.DropCount != 1 {
		t.Fatalf("DropCount = %d, want 1", st.DropCount)
	}
}

func TestPushPullRingFullBlockingTimeout(t *testing.T) {
	name := chanName(t)
	pusher, err := NewPusher(name, 8, 128, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewPusher: %v", err)
	}
	defer pusher.Close()

	for i := 0; i < 7; i++ {
		pusher.SendBytes([]byte{byte(i)}, false, nil)
	}

	start := time.Now()
	_, err = pusher.SendBytes([]byte{9}, true, dur(50*time.Millisecond))
	elapsed := time.Since(start)
	if err == nil {
		t.Fatal("expected BufferFullError")
	}
	if elapsed < 40*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestPushPullLoadBalance(t *testing.T) {
	name := chanName(t)
	pusher, err := NewPusher(name, 0, 0, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewPusher: %v", err)
	}
	defer pusher.Close()

	for i := 0; i < 6; i++ {
		if ok, err := pusher.Send(int64(i), true, nil); err != nil || !ok {
			t.Fatalf("send %d: ok=%v err=%v", i, ok, err)
		}
	}

	p1, err := NewPuller(name, time.Second, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewPuller p1: %v", err)
	}
	defer p1.Close()
	p2, err := NewPuller(name, time.Second, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewPuller p2: %v", err)
	}
	defer p2.Close()

	var got []int64
	for len(got) < 6 {
		if v, ok, err := p1.Recv(dur(200 * time.Millisecond)); err == nil && ok {
			got = append(got, v.(int64))
			continue
		}
		if v, ok, err := p2.Recv(dur(200 * time.Millisecond)); err == nil && ok {
			got = append(got, v.(int64))
			continue
		}
		break
	}

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []int64{0, 1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
