package frame

import (
	"image"
	"time"
)

// Frame is one raster image produced by a source, plus timing metadata.
// A Frame is immutable once published: the producer never touches Image
// again after pushing it into a Channel. Consumers that want to keep the
// pixels beyond the next delivered frame must copy them.
type Frame struct {
	Image     *image.RGBA
	Width     int
	Height    int
	Sequence  uint64 // monotonic per source
	Index     int    // source frame index; -1 for live capture
	Timestamp time.Time
	SourceID  string
}

// TargetSize is the output size a producer scales toward. Stored behind an
// atomic pointer so a resize is picked up atomically by exactly the next
// produced frame and never interrupts one in flight.
type TargetSize struct {
	W int
	H int
}
