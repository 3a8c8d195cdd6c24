package frame

import (
	"image"
	"sync"
)

// Reusable RGBA buffer pool to reduce heap churn from producing thousands
// of large frames. ScaleToFit and the capture backends acquire their output
// buffers here; producers return the pre-scale buffer once a scaled copy
// replaces it, and the Channel returns the buffers of frames it drops. If
// nothing is ever recycled the behavior degrades to plain allocation.

var pixPool sync.Pool // stores *image.RGBA

// AcquireRGBA returns an RGBA image sized to rect whose Pix capacity is at
// least rect area * 4. Stride is width*4 and Pix length matches exactly.
func AcquireRGBA(rect image.Rectangle) *image.RGBA {
	w, h := rect.Dx(), rect.Dy()
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	needed := w * h * 4
	var img *image.RGBA
	if v := pixPool.Get(); v != nil {
		img = v.(*image.RGBA)
	}
	if img == nil || cap(img.Pix) < needed {
		return &image.RGBA{Pix: make([]byte, needed), Stride: w * 4, Rect: rect}
	}
	img.Stride = w * 4
	img.Rect = rect
	img.Pix = img.Pix[:needed]
	return img
}

// ReleaseRGBA returns img to the pool. The caller must not touch img after
// releasing it.
func ReleaseRGBA(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	pixPool.Put(img)
}
