package capture

import (
	"image"

	"github.com/voslund/inkboard/domain/source"
)

// Native handle types. Kept as distinct types so acquire/release pairs
// cannot be crossed by accident.
type (
	HWND    uintptr
	HDC     uintptr
	HBITMAP uintptr
)

// Backend abstracts the OS graphics calls a window capture needs. The
// production implementation wraps user32/gdi32; tests substitute a counting
// fake to verify that every acquisition is paired with a release on every
// exit path.
type Backend interface {
	// IsWindow reports whether h still identifies a live window.
	IsWindow(h HWND) bool
	// WindowRect returns the window's bounding rectangle in screen
	// coordinates.
	WindowRect(h HWND) (image.Rectangle, error)

	// WindowDC acquires the window's device context. Must be paired with
	// ReleaseDC.
	WindowDC(h HWND) (HDC, error)
	// CreateCompatibleDC creates an off-screen context compatible with dc.
	// Must be paired with DeleteDC.
	CreateCompatibleDC(dc HDC) (HDC, error)
	// CreateCompatibleBitmap creates an off-screen surface sized w x h.
	// Must be paired with DeleteObject.
	CreateCompatibleBitmap(dc HDC, w, h int) (HBITMAP, error)
	// SelectBitmap selects bmp into dc.
	SelectBitmap(dc HDC, bmp HBITMAP) error
	// PrintWindow copies the window's full content (including occluded
	// regions) into dc.
	PrintWindow(h HWND, dc HDC) error
	// ReadPixels copies the bitmap selected into dc out as RGBA pixels.
	ReadPixels(dc HDC, bmp HBITMAP, w, h int) (*image.RGBA, error)

	ReleaseDC(h HWND, dc HDC) error
	DeleteDC(dc HDC) error
	DeleteObject(bmp HBITMAP) error

	// ListWindows enumerates visible top-level windows for the picker.
	ListWindows() ([]source.Window, error)
}

// Grabber produces one frame per call from a window or monitor target.
type Grabber interface {
	// CheckLive verifies the target still exists. Returns nil for targets
	// that cannot disappear.
	CheckLive() error
	// Grab captures one full frame at the source's native size.
	Grab() (*image.RGBA, error)
	// SourceSize returns the current native dimensions of the target.
	SourceSize() (w, h int)
	Close() error
}
