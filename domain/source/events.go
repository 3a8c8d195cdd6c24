package source

// Event is what a producer publishes toward its owner. Producers hold only
// their frame channel and event channel; they never reference the session
// that owns them.
type Event interface{ event() }

// FrameReady announces that a frame was pushed into the frame channel.
type FrameReady struct {
	SourceID string
	Sequence uint64
	Index    int
}

// PositionChanged reports the index of the most recently delivered frame.
type PositionChanged struct {
	SourceID string
	Index    int
}

// SourceError carries a (rate-limited) production error. Fatal errors mean
// the producer has stopped and will not retry.
type SourceError struct {
	SourceID string
	Err      error
	Fatal    bool
}

func (FrameReady) event()      {}
func (PositionChanged) event() {}
func (SourceError) event()     {}
