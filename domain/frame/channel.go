package frame

import "sync"

// Channel is the bounded handoff between one producer goroutine and the
// consumer. Push never blocks: when the channel is full the oldest buffered
// frame is dropped to make room for the newest. Clear is used by seek
// handling so the consumer never observes a pre-seek frame after a
// post-seek one.
//
// Dropped frames were never handed to the consumer, so their pixel buffers
// go straight back to the frame pool. Frames returned by Pop or Latest are
// the consumer's to keep.
type Channel struct {
	mu       sync.Mutex
	buf      []Frame
	capacity int
	pushed   uint64
	dropped  uint64
}

// ChannelStats summarises channel behaviour for instrumentation.
type ChannelStats struct {
	Pushed  uint64
	Dropped uint64
	Len     int
}

// NewChannel returns a channel holding at most capacity frames.
// Capacities below 1 are raised to 1.
func NewChannel(capacity int) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel{buf: make([]Frame, 0, capacity), capacity: capacity}
}

// Push appends f, evicting the oldest buffered frame if the channel is
// full. It reports whether an eviction happened.
func (c *Channel) Push(f Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := false
	if len(c.buf) >= c.capacity {
		ReleaseRGBA(c.buf[0].Image)
		copy(c.buf, c.buf[1:])
		c.buf = c.buf[:len(c.buf)-1]
		c.dropped++
		evicted = true
	}
	c.buf = append(c.buf, f)
	c.pushed++
	return evicted
}

// Pop removes and returns the oldest buffered frame.
func (c *Channel) Pop() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return Frame{}, false
	}
	f := c.buf[0]
	copy(c.buf, c.buf[1:])
	c.buf = c.buf[:len(c.buf)-1]
	return f, true
}

// Latest removes everything buffered and returns only the newest frame.
// Consumers that render at their own cadence use this to skip stale frames.
func (c *Channel) Latest() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return Frame{}, false
	}
	f := c.buf[len(c.buf)-1]
	for i := 0; i < len(c.buf)-1; i++ {
		ReleaseRGBA(c.buf[i].Image)
	}
	c.dropped += uint64(len(c.buf) - 1)
	c.buf = c.buf[:0]
	return f, true
}

// Clear discards all buffered frames, recycling their buffers.
func (c *Channel) Clear() {
	c.mu.Lock()
	for i := range c.buf {
		ReleaseRGBA(c.buf[i].Image)
	}
	c.buf = c.buf[:0]
	c.mu.Unlock()
}

// Len reports the number of buffered frames.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Capacity reports the configured maximum.
func (c *Channel) Capacity() int { return c.capacity }

// Stats returns a snapshot of channel counters.
func (c *Channel) Stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChannelStats{Pushed: c.pushed, Dropped: c.dropped, Len: len(c.buf)}
}
