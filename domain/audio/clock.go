package audio

import (
	"sync"
	"time"
)

// Clock is an externally maintained playback time for an audio stream. The
// session uses it only as a synchronization reference, never as
// authoritative content.
type Clock interface {
	Position() time.Duration
	Duration() time.Duration
}

// ManualClock is a Clock whose position is set by hand. Used by tests and
// by sessions that play without audio output.
type ManualClock struct {
	mu  sync.Mutex
	pos time.Duration
	dur time.Duration
}

func NewManualClock(dur time.Duration) *ManualClock {
	return &ManualClock{dur: dur}
}

func (c *ManualClock) SetPosition(pos time.Duration) {
	c.mu.Lock()
	c.pos = pos
	c.mu.Unlock()
}

func (c *ManualClock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

func (c *ManualClock) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dur
}
