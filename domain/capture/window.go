package capture

import (
	"fmt"
	"image"

	"github.com/voslund/inkboard/domain/source"
)

// WindowGrabber captures the full content of one native window through a
// Backend. Each Grab acquires the window DC, a compatible off-screen DC and
// bitmap, copies the window, and releases everything in strict reverse
// acquisition order on every exit path, exactly once per attempt. All
// window-capture sessions in the process draw from the same finite OS
// handle pool, so that pairing is load-bearing process-wide.
type WindowGrabber struct {
	be   Backend
	hwnd HWND
}

// NewWindowGrabber validates the target and returns a grabber for it.
func NewWindowGrabber(be Backend, desc source.Window) (*WindowGrabber, error) {
	h := HWND(desc.Handle)
	if !be.IsWindow(h) {
		return nil, fmt.Errorf("%w: %s", source.ErrSourceOpen, desc.Label())
	}
	return &WindowGrabber{be: be, hwnd: h}, nil
}

// CheckLive verifies the window handle still identifies a live window.
func (g *WindowGrabber) CheckLive() error {
	if !g.be.IsWindow(g.hwnd) {
		return fmt.Errorf("%w: hwnd 0x%x", source.ErrTargetLost, uintptr(g.hwnd))
	}
	return nil
}

// SourceSize returns the window's current dimensions.
func (g *WindowGrabber) SourceSize() (int, int) {
	r, err := g.be.WindowRect(g.hwnd)
	if err != nil {
		return 0, 0
	}
	return r.Dx(), r.Dy()
}

// Grab captures one frame of the window's full content.
func (g *WindowGrabber) Grab() (out *image.RGBA, err error) {
	r, err := g.be.WindowRect(g.hwnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrResourceAcquisition, err)
	}
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("window has degenerate size %dx%d", w, h)
	}

	hwndDC, err := g.be.WindowDC(g.hwnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrResourceAcquisition, err)
	}
	defer g.be.ReleaseDC(g.hwnd, hwndDC)

	memDC, err := g.be.CreateCompatibleDC(hwndDC)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrResourceAcquisition, err)
	}
	defer g.be.DeleteDC(memDC)

	bmp, err := g.be.CreateCompatibleBitmap(hwndDC, w, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrResourceAcquisition, err)
	}
	defer g.be.DeleteObject(bmp)

	if err := g.be.SelectBitmap(memDC, bmp); err != nil {
		return nil, err
	}
	if err := g.be.PrintWindow(g.hwnd, memDC); err != nil {
		return nil, err
	}
	return g.be.ReadPixels(memDC, bmp, w, h)
}

func (g *WindowGrabber) Close() error { return nil }
