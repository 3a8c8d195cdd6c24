package source

import "time"

// Pacer decides when the next frame is due. It advances the due time by a
// whole period on each produced frame (not "now + period"), so scheduling
// jitter does not accumulate into drift. A producer that falls more than
// one period behind is resynchronized instead of replaying the backlog.
type Pacer struct {
	period time.Duration
	next   time.Time
}

// NewPacer returns a pacer targeting the given rate in frames per second.
// Non-positive rates fall back to 30.
func NewPacer(rate float64) *Pacer {
	if rate <= 0 {
		rate = 30
	}
	return &Pacer{period: time.Duration(float64(time.Second) / rate)}
}

// Period returns the frame interval.
func (p *Pacer) Period() time.Duration { return p.period }

// Due reports whether a production attempt should happen at now.
func (p *Pacer) Due(now time.Time) bool {
	return p.next.IsZero() || !now.Before(p.next)
}

// Advance schedules the next due time after a successful production step.
func (p *Pacer) Advance(now time.Time) {
	if p.next.IsZero() {
		p.next = now
	}
	p.next = p.next.Add(p.period)
	if now.Sub(p.next) > p.period {
		p.next = now.Add(p.period)
	}
}

// Reset restarts pacing from now. Used after seeks and resume.
func (p *Pacer) Reset(now time.Time) { p.next = now }

// Lag reports how far past the due time now is, or zero if not yet due.
func (p *Pacer) Lag(now time.Time) time.Duration {
	if p.next.IsZero() || now.Before(p.next) {
		return 0
	}
	return now.Sub(p.next)
}

// SleepSlice returns a short bounded sleep toward the next due time. The
// producer sleeps in these slices so control commands stay responsive:
// never a tight busy loop, never one long blocking sleep.
func (p *Pacer) SleepSlice(now time.Time) time.Duration {
	if p.Due(now) {
		return 0
	}
	d := p.next.Sub(now) / 2
	if d > time.Millisecond {
		d = time.Millisecond
	}
	if d < 100*time.Microsecond {
		d = 100 * time.Microsecond
	}
	return d
}

// NormalizeRate validates a container-reported frame rate. Non-positive or
// implausibly high values fall back to fallback.
func NormalizeRate(reported, fallback, maxPlausible float64) float64 {
	if reported <= 0 || reported > maxPlausible {
		return fallback
	}
	return reported
}
