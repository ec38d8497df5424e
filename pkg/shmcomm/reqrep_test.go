package shmcomm

import (
	"sync"
	"testing"
	"time"

	"github.com/adred-codev/shmcomm/internal/codec"
)

func TestReqRepRoundTrip(t *testing.T) {
	name := chanName(t)
	rep, err := NewReplier(name, 0, 0, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewReplier: %v", err)
	}
	defer rep.Close()

	req, err := NewRequester(name, time.Second, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewRequester: %v", err)
	}
	defer req.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		request, ok, err := rep.Recv(dur(2 * time.Second))
		if err != nil || !ok {
			t.Errorf("Replier.Recv: ok=%v err=%v", ok, err)
			return
		}
		m, ok := request.(map[string]any)
		if !ok || m["query"] != "ping" {
			t.Errorf("unexpected request: %#v", request)
			return
		}
		if _, err := rep.Send(map[string]any{"reply": "pong"}); err != nil {
			t.Errorf("Replier.Send: %v", err)
		}
	}()

	reply, err := req.Request(map[string]any{"query": "ping"}, dur(2*time.Second))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	wg.Wait()

	m, ok := reply.(map[string]any)
	if !ok || m["reply"] != "pong" {
		t.Fatalf("Request returned %#v, want reply=pong", reply)
	}
}

func TestRequestTimesOutWithoutReply(t *testing.T) {
	name := chanName(t)
	rep, err := NewReplier(name, 0, 0, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewReplier: %v", err)
	}
	defer rep.Close()

	req, err := NewRequester(name, time.Second, codec.PickleEquivalent)
	if err != nil {
		t.Fatalf("NewRequester: %v", err)
	}
	defer req.Close()

	start := time.Now()
	_, err = req.Request(map[string]any{"query": "ping"}, dur(30*time.Millisecond))
	if err == nil {
		t.Fatal("expected TimeoutError")
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal("returned too early")
	}
}
