package frame

import (
	"image"

	"golang.org/x/image/draw"
)

// FitSize returns the largest size within maxW x maxH that preserves the
// srcW:srcH aspect ratio, with a floor of minDim on each dimension so a
// degenerate target cannot collapse the output.
func FitSize(srcW, srcH, maxW, maxH, minDim int) (int, int) {
	if srcW <= 0 || srcH <= 0 || maxW <= 0 || maxH <= 0 {
		return srcW, srcH
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)
	var w, h int
	if srcAspect > dstAspect {
		w = maxW
		h = int(float64(maxW) / srcAspect)
	} else {
		h = maxH
		w = int(float64(maxH) * srcAspect)
	}
	if minDim > 0 {
		if w < minDim {
			w = minDim
		}
		if h < minDim {
			h = minDim
		}
	}
	return w, h
}

// ScaleToFit scales src to fit within target preserving aspect ratio.
// A nil target or a source already at the fitted size is returned as-is.
// The destination buffer is drawn from the frame pool; draw.Src fully
// overwrites it, so recycled pixel content never shows through.
func ScaleToFit(src *image.RGBA, target *TargetSize, minDim int) *image.RGBA {
	if src == nil || target == nil || target.W <= 0 || target.H <= 0 {
		return src
	}
	b := src.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), target.W, target.H, minDim)
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	dst := AcquireRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
