// Package schedule runs delayed actions (note release, recording
// auto-stop) through one cancellable queue instead of per-call daemon
// goroutines, so session teardown is deterministic: Stop cancels anything
// still pending and waits for callbacks already in flight.
package schedule

import (
	"sync"
	"time"
)

type Scheduler struct {
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{pending: make(map[int64]*time.Timer)}
}

// After schedules fn to run once d elapses and returns a handle usable with
// Cancel. After a Stop the action is dropped and 0 returned.
func (s *Scheduler) After(d time.Duration, fn func()) int64 {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0
	}
	s.nextID++
	id := s.nextID
	s.wg.Add(1)
	timer := time.AfterFunc(d, func() {
		defer s.wg.Done()
		s.mu.Lock()
		_, live := s.pending[id]
		delete(s.pending, id)
		stopped := s.stopped
		s.mu.Unlock()
		if live && !stopped {
			fn()
		}
	})
	s.pending[id] = timer
	s.mu.Unlock()
	return id
}

// Cancel prevents a pending action from running. Reports false when the
// action already fired, was cancelled, or never existed.
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.Lock()
	timer, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	if timer.Stop() {
		s.wg.Done()
	}
	return true
}

// Pending reports how many actions are queued.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending action and blocks until in-flight callbacks
// return. Safe to call multiple times; After is a no-op afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.stopped = true
	timers := make(map[int64]*time.Timer, len(s.pending))
	for id, timer := range s.pending {
		timers[id] = timer
	}
	s.pending = make(map[int64]*time.Timer)
	s.mu.Unlock()

	for _, timer := range timers {
		if timer.Stop() {
			s.wg.Done()
		}
	}
	s.wg.Wait()
}
