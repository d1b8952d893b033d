package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAfterFires(t *testing.T) {
	s := New()
	defer s.Stop()

	fired := make(chan struct{})
	s.After(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("action never fired")
	}
	if s.Pending() != 0 {
		t.Fatalf("fired action still pending: %d", s.Pending())
	}
}

func TestCancelBeforeFire(t *testing.T) {
	s := New()
	defer s.Stop()

	var ran atomic.Bool
	id := s.After(50*time.Millisecond, func() { ran.Store(true) })
	if !s.Cancel(id) {
		t.Fatal("cancel of pending action reported false")
	}
	time.Sleep(80 * time.Millisecond)
	if ran.Load() {
		t.Fatal("cancelled action ran")
	}
	if s.Cancel(id) {
		t.Fatal("second cancel reported true")
	}
}

func TestStopDropsPendingAndWaits(t *testing.T) {
	s := New()
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		s.After(time.Hour, func() { ran.Add(1) })
	}
	s.Stop()
	if got := ran.Load(); got != 0 {
		t.Fatalf("%d pending actions ran through Stop", got)
	}
	if s.Pending() != 0 {
		t.Fatalf("pending after stop: %d", s.Pending())
	}
	if id := s.After(time.Millisecond, func() { ran.Add(1) }); id != 0 {
		t.Fatalf("After accepted work post-Stop: id=%d", id)
	}
	s.Stop() // idempotent
}

func TestStopWaitsForInFlight(t *testing.T) {
	s := New()
	started := make(chan struct{})
	var done atomic.Bool
	s.After(time.Millisecond, func() {
		close(started)
		time.Sleep(30 * time.Millisecond)
		done.Store(true)
	})
	<-started
	s.Stop()
	if !done.Load() {
		t.Fatal("Stop returned before in-flight callback finished")
	}
}
