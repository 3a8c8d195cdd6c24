package source

import (
	"fmt"
	"image"
	"path/filepath"
)

// Descriptor is the immutable identity of a producer. It is a sealed
// variant: exactly one of the concrete types below, never an ad hoc
// existence check on optional fields.
type Descriptor interface {
	Label() string
	descriptor()
}

// VideoFile identifies a decodable video on disk.
type VideoFile struct {
	Path        string
	TotalFrames int
	Rate        float64 // native frame rate as reported by the container
}

func (VideoFile) descriptor() {}

func (d VideoFile) Label() string { return filepath.Base(d.Path) }

// Window identifies a native window to capture.
type Window struct {
	Handle uintptr
	Title  string
}

func (Window) descriptor() {}

func (d Window) Label() string {
	if d.Title != "" {
		return d.Title
	}
	return fmt.Sprintf("window 0x%x", d.Handle)
}

// Monitor identifies a screen region to capture.
type Monitor struct {
	Left   int
	Top    int
	Width  int
	Height int
}

func (Monitor) descriptor() {}

func (d Monitor) Label() string {
	return fmt.Sprintf("monitor %dx%d@%d,%d", d.Width, d.Height, d.Left, d.Top)
}

// Rect returns the monitor region as an image rectangle.
func (d Monitor) Rect() image.Rectangle {
	return image.Rect(d.Left, d.Top, d.Left+d.Width, d.Top+d.Height)
}
