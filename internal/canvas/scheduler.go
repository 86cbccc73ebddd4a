package canvas

import (
	"sync"
	"time"
)

// Scheduler debounces canvas saves: every mutation schedules (or reschedules)
// a timer, so rapid bursts coalesce into a single write after a quiet period.
// A schedule for a different notebook id drops the stale pending save, which
// keeps a leftover burst from notebook A from being written after the session
// has moved on to notebook B.
type Scheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending string

	save func(notebookID string)
}

// NewScheduler creates a scheduler that invokes save after delay of quiet
// time following the last Schedule call.
func NewScheduler(delay time.Duration, save func(notebookID string)) *Scheduler {
	if delay <= 0 {
		delay = time.Second
	}
	return &Scheduler{delay: delay, save: save}
}

// Schedule arms (or re-arms) the save timer for notebookID.
func (s *Scheduler) Schedule(notebookID string) {
	if notebookID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil && s.pending != notebookID {
		// Active notebook changed; the stale save is dropped.
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = notebookID
	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.fire)
	} else {
		s.timer.Reset(s.delay)
	}
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	id := s.pending
	s.pending = ""
	s.timer = nil
	s.mu.Unlock()

	if id != "" {
		s.save(id)
	}
}

// Flush runs the pending save synchronously, if any. Used on navigation away
// and at shutdown so the debounce window cannot lose the final burst.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	id := s.pending
	s.pending = ""
	s.mu.Unlock()

	if id != "" {
		s.save(id)
	}
}

// Stop discards any pending save without running it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = ""
}

// Pending returns the notebook id with a save queued, or empty.
func (s *Scheduler) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
