package audio

import (
	"sync"
	"time"
)

// Scheduler sequences decoded buffers so each one starts exactly when the
// previous one ends, regardless of how unevenly chunks arrive from the
// network. It keeps a cursor for the next free playback slot: a buffer is
// scheduled at the later of the cursor and the current time, and the cursor
// advances by the buffer's duration.
type Scheduler struct {
	mu     sync.Mutex
	emit   func(*Buffer)
	now    func() time.Time
	next   time.Time
	timers map[int]*time.Timer
	nextID int
}

// NewScheduler creates a scheduler that hands each buffer to emit at its
// scheduled start time. Emit runs on a timer goroutine and should hand the
// buffer off quickly.
func NewScheduler(emit func(*Buffer)) *Scheduler {
	return &Scheduler{
		emit:   emit,
		now:    time.Now,
		timers: make(map[int]*time.Timer),
	}
}

// Schedule queues buf for playback and returns its start time. Buffers
// scheduled while earlier ones are still pending are placed back to back;
// after an idle gap playback starts immediately.
func (s *Scheduler) Schedule(buf *Buffer) time.Time {
	s.mu.Lock()
	now := s.now()
	start := now
	if s.next.After(now) {
		start = s.next
	}
	s.next = start.Add(buf.Duration())

	id := s.nextID
	s.nextID++
	s.timers[id] = time.AfterFunc(start.Sub(now), func() {
		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()
		if live {
			s.emit(buf)
		}
	})
	s.mu.Unlock()
	return start
}

// StopAll cancels every buffer that has not started playing. Cancelation is
// all-or-nothing: after StopAll returns, no pending buffer will be emitted.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
}

// Reset cancels all pending buffers and clears the cursor so the next
// schedule starts immediately. Called at the start of a fresh session.
func (s *Scheduler) Reset() {
	s.StopAll()
	s.mu.Lock()
	s.next = time.Time{}
	s.mu.Unlock()
}

// Pending returns the number of buffers scheduled but not yet emitted.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
