package game

import (
	"sync"
	"time"
)

// Scheduler runs f once after d, on another goroutine or later on the caller's.
// f must not be run before AfterFunc returns.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// TimerScheduler runs callbacks on real timers via time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

// ManualScheduler queues callbacks until Flush is called. Useful in tests and
// in hosts that drive time themselves.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []func()
	delays  []time.Duration
}

// AfterFunc queues f.
func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, f)
	m.delays = append(m.delays, d)
}

// Pending is the number of queued callbacks.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// LastDelay is the delay requested by the most recent AfterFunc call.
func (m *ManualScheduler) LastDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.delays) == 0 {
		return 0
	}
	return m.delays[len(m.delays)-1]
}

// Flush runs every queued callback in order and clears the queue.
func (m *ManualScheduler) Flush() {
	m.mu.Lock()
	fns := m.pending
	m.pending, m.delays = nil, nil
	m.mu.Unlock()
	for _, f := range fns {
		f()
	}
}
