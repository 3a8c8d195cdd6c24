package source

import (
	"sync"
	"time"
)

// Supervisor tracks consecutive production failures for one source and
// rate-limits outbound error reports. Any success resets the streak; once
// the streak reaches the configured maximum the source must halt.
type Supervisor struct {
	maxConsecutive int
	recoveryDelay  time.Duration
	reportCooldown time.Duration

	mu          sync.Mutex
	consecutive int
	lastReport  time.Time
	now         func() time.Time // test hook
}

// NewSupervisor returns a supervisor with the given limits. maxConsecutive
// below 1 is raised to 1.
func NewSupervisor(maxConsecutive int, recoveryDelay, reportCooldown time.Duration) *Supervisor {
	if maxConsecutive < 1 {
		maxConsecutive = 1
	}
	return &Supervisor{
		maxConsecutive: maxConsecutive,
		recoveryDelay:  recoveryDelay,
		reportCooldown: reportCooldown,
		now:            time.Now,
	}
}

// Success resets the consecutive-failure streak.
func (s *Supervisor) Success() {
	s.mu.Lock()
	s.consecutive = 0
	s.mu.Unlock()
}

// Failure records one failed production attempt and reports whether the
// source has exhausted its retries.
func (s *Supervisor) Failure() (exhausted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutive++
	return s.consecutive >= s.maxConsecutive
}

// Consecutive returns the current failure streak.
func (s *Supervisor) Consecutive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutive
}

// RecoveryDelay is how long the producer waits after a failed attempt
// before trying again.
func (s *Supervisor) RecoveryDelay() time.Duration { return s.recoveryDelay }

// AllowReport reports whether an error event may be emitted now. At most
// one report passes per cooldown window, independent of how many failures
// occurred inside it.
func (s *Supervisor) AllowReport() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !s.lastReport.IsZero() && now.Sub(s.lastReport) < s.reportCooldown {
		return false
	}
	s.lastReport = now
	return true
}
