// Package clock abstracts the time source so the sync scheduler can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock supplies wall-clock time and periodic ticks.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemClock struct{}

// System returns a Clock backed by the time package.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Ticker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time {
	return s.t.C
}

func (s *systemTicker) Stop() {
	s.t.Stop()
}

// Manual is a hand-driven clock for tests. Ticks are delivered by calling
// Tick; Now returns a settable instant. Safe for concurrent use, since the
// scheduler under test reads it from its own goroutine.
type Manual struct {
	mu      sync.Mutex
	instant time.Time
	ch      chan time.Time
}

// NewManual creates a manual clock starting at the given instant.
func NewManual(at time.Time) *Manual {
	return &Manual{instant: at, ch: make(chan time.Time, 1)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instant
}

func (m *Manual) Ticker(time.Duration) Ticker {
	return manualTicker{ch: m.ch}
}

// Advance moves the clock forward.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.instant = m.instant.Add(d)
	m.mu.Unlock()
}

// Tick delivers one tick to any ticker created from this clock.
func (m *Manual) Tick() {
	m.ch <- m.Now()
}

type manualTicker struct {
	ch chan time.Time
}

func (t manualTicker) C() <-chan time.Time { return t.ch }
func (t manualTicker) Stop()               {}
