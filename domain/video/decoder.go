package video

import (
	"errors"
	"image"
)

// ErrEndOfStream is returned by ReadFrame when the last frame has been
// consumed. It is not a production failure.
var ErrEndOfStream = errors.New("end of video stream")

// Decoder provides sequential access to the frames of one video file.
// Implementations are not safe for concurrent use; the worker serializes
// every call behind its exclusive production region.
type Decoder interface {
	// ReadFrame decodes and returns the next frame.
	ReadFrame() (*image.RGBA, error)
	// Seek repositions the decoder so the next ReadFrame returns the frame
	// at index. The index must already be clamped by the caller.
	Seek(index int) error
	// TotalFrames is the frame count reported by (or derived from) the
	// container. Zero when unknown.
	TotalFrames() int
	// Rate is the native frame rate as reported; may be zero or garbage,
	// callers normalize it.
	Rate() float64
	// Size returns the native frame dimensions.
	Size() (w, h int)
	Close() error
}
