//go:build windows

package capture

// Windows GDI backend. Uses lazily loaded DLL procs; every call site
// formats the Win32 error code into the returned error.

import (
	"fmt"
	"image"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/voslund/inkboard/domain/frame"
	"github.com/voslund/inkboard/domain/source"
)

const (
	dibRGBColors = 0
	biRgb        = 0

	// PW_RENDERFULLCONTENT: capture the full window content, not merely
	// the visible region, so occluded and background windows still render.
	pwRenderFullContent = 0x2
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	gdi32    = windows.NewLazySystemDLL("gdi32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procIsWindow               = user32.NewProc("IsWindow")
	procIsWindowVisible        = user32.NewProc("IsWindowVisible")
	procGetWindowRect          = user32.NewProc("GetWindowRect")
	procGetWindowDC            = user32.NewProc("GetWindowDC")
	procReleaseDC              = user32.NewProc("ReleaseDC")
	procPrintWindow            = user32.NewProc("PrintWindow")
	procEnumWindows            = user32.NewProc("EnumWindows")
	procGetWindowTextW         = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW   = user32.NewProc("GetWindowTextLengthW")
	procSetProcessDPIAware     = user32.NewProc("SetProcessDPIAware")
	procCreateCompatibleDC     = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject           = gdi32.NewProc("SelectObject")
	procDeleteDC               = gdi32.NewProc("DeleteDC")
	procDeleteObject           = gdi32.NewProc("DeleteObject")
	procGetDIBits              = gdi32.NewProc("GetDIBits")
	procGetLastError           = kernel32.NewProc("GetLastError")
)

// BITMAPINFO structures (Win32 layout).
type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	_      [4]byte // one RGBQUAD placeholder (unused for 32-bit)
}

type rect struct {
	Left, Top, Right, Bottom int32
}

type gdiBackend struct{}

// NewBackend returns the GDI capture backend. The process is marked DPI
// aware once so window rectangles come back in physical pixels.
func NewBackend() (Backend, error) {
	_, _, _ = procSetProcessDPIAware.Call()
	return gdiBackend{}, nil
}

func (gdiBackend) IsWindow(h HWND) bool {
	v, _, _ := procIsWindow.Call(uintptr(h))
	return v != 0
}

func (gdiBackend) WindowRect(h HWND) (image.Rectangle, error) {
	var r rect
	v, _, _ := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&r)))
	if v == 0 {
		return image.Rectangle{}, fmt.Errorf("GetWindowRect failed winerr=%d", getLastError())
	}
	return image.Rect(int(r.Left), int(r.Top), int(r.Right), int(r.Bottom)), nil
}

func (gdiBackend) WindowDC(h HWND) (HDC, error) {
	dc, _, _ := procGetWindowDC.Call(uintptr(h))
	if dc == 0 {
		return 0, fmt.Errorf("GetWindowDC failed winerr=%d", getLastError())
	}
	return HDC(dc), nil
}

func (gdiBackend) CreateCompatibleDC(dc HDC) (HDC, error) {
	mem, _, _ := procCreateCompatibleDC.Call(uintptr(dc))
	if mem == 0 {
		return 0, fmt.Errorf("CreateCompatibleDC failed winerr=%d", getLastError())
	}
	return HDC(mem), nil
}

func (gdiBackend) CreateCompatibleBitmap(dc HDC, w, h int) (HBITMAP, error) {
	bmp, _, _ := procCreateCompatibleBitmap.Call(uintptr(dc), uintptr(w), uintptr(h))
	if bmp == 0 {
		return 0, fmt.Errorf("CreateCompatibleBitmap failed w=%d h=%d winerr=%d", w, h, getLastError())
	}
	return HBITMAP(bmp), nil
}

func (gdiBackend) SelectBitmap(dc HDC, bmp HBITMAP) error {
	prev, _, _ := procSelectObject.Call(uintptr(dc), uintptr(bmp))
	if prev == 0 || prev == ^uintptr(0) { // failure or GDI_ERROR
		return fmt.Errorf("SelectObject failed winerr=%d", getLastError())
	}
	return nil
}

func (gdiBackend) PrintWindow(h HWND, dc HDC) error {
	v, _, _ := procPrintWindow.Call(uintptr(h), uintptr(dc), pwRenderFullContent)
	if v == 0 {
		return fmt.Errorf("PrintWindow failed winerr=%d", getLastError())
	}
	return nil
}

func (gdiBackend) ReadPixels(dc HDC, bmp HBITMAP, w, h int) (*image.RGBA, error) {
	var bi bitmapInfo
	bi.Header.BiSize = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.BiWidth = int32(w)
	bi.Header.BiHeight = -int32(h) // top-down
	bi.Header.BiPlanes = 1
	bi.Header.BiBitCount = 32
	bi.Header.BiCompression = biRgb
	bi.Header.BiSizeImage = uint32(w * h * 4)

	buf := make([]byte, w*h*4)
	v, _, _ := procGetDIBits.Call(
		uintptr(dc), uintptr(bmp), 0, uintptr(h),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&bi)),
		dibRGBColors,
	)
	if v == 0 {
		return nil, fmt.Errorf("GetDIBits failed w=%d h=%d winerr=%d", w, h, getLastError())
	}

	// BGRA in the DIB to RGBA; the DIB alpha channel is undefined.
	dst := frame.AcquireRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(buf); i += 4 {
		dst.Pix[i+0] = buf[i+2]
		dst.Pix[i+1] = buf[i+1]
		dst.Pix[i+2] = buf[i+0]
		dst.Pix[i+3] = 0xFF
	}
	return dst, nil
}

func (gdiBackend) ReleaseDC(h HWND, dc HDC) error {
	v, _, _ := procReleaseDC.Call(uintptr(h), uintptr(dc))
	if v == 0 {
		return fmt.Errorf("ReleaseDC failed winerr=%d", getLastError())
	}
	return nil
}

func (gdiBackend) DeleteDC(dc HDC) error {
	v, _, _ := procDeleteDC.Call(uintptr(dc))
	if v == 0 {
		return fmt.Errorf("DeleteDC failed winerr=%d", getLastError())
	}
	return nil
}

func (gdiBackend) DeleteObject(bmp HBITMAP) error {
	v, _, _ := procDeleteObject.Call(uintptr(bmp))
	if v == 0 {
		return fmt.Errorf("DeleteObject failed winerr=%d", getLastError())
	}
	return nil
}

func (gdiBackend) ListWindows() ([]source.Window, error) {
	var out []source.Window
	cb := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		if vis, _, _ := procIsWindowVisible.Call(hwnd); vis == 0 {
			return 1 // continue enumeration
		}
		length, _, _ := procGetWindowTextLengthW.Call(hwnd)
		if length == 0 {
			return 1
		}
		buf := make([]uint16, length+1)
		procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), length+1)
		out = append(out, source.Window{
			Handle: hwnd,
			Title:  windows.UTF16ToString(buf),
		})
		return 1
	})
	v, _, _ := procEnumWindows.Call(cb, 0)
	if v == 0 {
		return nil, fmt.Errorf("EnumWindows failed winerr=%d", getLastError())
	}
	return out, nil
}

func getLastError() uint32 {
	v, _, _ := procGetLastError.Call()
	return uint32(v)
}
