// Package motion holds the motion detection switch of the camera device.
package motion

import (
	"sync"
	"time"
)

type Switch struct {
	mu      sync.Mutex
	enabled bool
	until   time.Time
	revert  *time.Timer
}

func New(enabled bool) *Switch {
	return &Switch{enabled: enabled}
}

// Enable turns detection on. A positive d turns it off again after d.
func (s *Switch) Enable(d time.Duration) {
	s.set(true, d)
}

// Disable turns detection off. A positive d turns it on again after d.
func (s *Switch) Disable(d time.Duration) {
	s.set(false, d)
}

func (s *Switch) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enabled
}

// Until reports when the current state reverts. Zero means it is permanent.
func (s *Switch) Until() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.until
}

func (s *Switch) set(enabled bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revert != nil {
		s.revert.Stop()
		s.revert = nil
	}

	s.enabled = enabled
	s.until = time.Time{}

	if d <= 0 {
		return
	}

	s.until = time.Now().Add(d)

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// A newer call replaced this timer.
		if s.revert != timer {
			return
		}

		s.enabled = !enabled
		s.until = time.Time{}
		s.revert = nil
	})
	s.revert = timer
}
