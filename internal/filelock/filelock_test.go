package filelock

import (
	"fmt"
	"testing"
	"time"
)

func testName(t *testing.T) string {
	return fmt.Sprintf("shmcomm_test_%s_%d", t.Name(), time.Now().UnixNano())
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	l := New(testName(t))
	if err := l.Acquire(time.Second); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	l := New(testName(t))
	if err := l.Acquire(time.Second); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestWithLockRunsAndReleases(t *testing.T) {
	l := New(testName(t))
	ran := false
	err := WithLock(l, time.Second, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Fatal("fn was not run")
	}
	// A second acquisition must succeed, proving the first was released.
	if err := l.Acquire(time.Second); err != nil {
		t.Fatalf("Acquire after WithLock: %v", err)
	}
	l.Release()
}

func TestSecondAcquireTimesOutWhileHeld(t *testing.T) {
	name := testName(t)
	holder := New(name)
	if err := holder.Acquire(time.Second); err != nil {
		t.Fatalf("holder Acquire: %v", err)
	}
	defer holder.Release()

	contender := New(name)
	start := time.Now()
	err := contender.Acquire(20 * time.Millisecond)
	if err == nil {
		t.Fatal("expected TimeoutError while lock is held")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("returned too early")
	}
}
