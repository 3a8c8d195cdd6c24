package frame

import (
	"image"
	"testing"
)

func TestFitSize(t *testing.T) {
	tests := []struct {
		name                     string
		srcW, srcH, maxW, maxH   int
		minDim                   int
		wantW, wantH             int
	}{
		{"wider than target", 1920, 1080, 960, 960, 0, 960, 540},
		{"taller than target", 1080, 1920, 960, 960, 0, 540, 960},
		{"exact fit", 640, 480, 640, 480, 0, 640, 480},
		{"upscale to target", 320, 240, 640, 480, 0, 640, 480},
		{"min dim floor", 1000, 100, 200, 200, 100, 200, 100},
		{"floor raises collapsed side", 2000, 100, 300, 300, 100, 300, 100},
		{"degenerate source passes through", 0, 480, 640, 480, 100, 0, 480},
		{"degenerate target passes through", 640, 480, 0, 480, 100, 640, 480},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitSize(tt.srcW, tt.srcH, tt.maxW, tt.maxH, tt.minDim)
			if w != tt.wantW || h != tt.wantH {
				t.Fatalf("FitSize(%d,%d,%d,%d,%d) = (%d,%d), want (%d,%d)",
					tt.srcW, tt.srcH, tt.maxW, tt.maxH, tt.minDim, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestScaleToFitNoTarget(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	if got := ScaleToFit(src, nil, 0); got != src {
		t.Fatalf("nil target must return the source unchanged")
	}
	if got := ScaleToFit(nil, &TargetSize{W: 10, H: 10}, 0); got != nil {
		t.Fatalf("nil source must return nil")
	}
}

func TestScaleToFitIdentity(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	got := ScaleToFit(src, &TargetSize{W: 100, H: 50}, 0)
	if got != src {
		t.Fatalf("source already at fitted size must not be copied")
	}
}

func TestScaleToFitDrawsFromPool(t *testing.T) {
	buf := AcquireRGBA(image.Rect(0, 0, 200, 100))
	for i := range buf.Pix {
		buf.Pix[i] = 0xFF // stale content from a previous frame
	}
	ReleaseRGBA(buf)

	src := image.NewRGBA(image.Rect(0, 0, 400, 200)) // fully transparent
	got := ScaleToFit(src, &TargetSize{W: 200, H: 200}, 0)
	if &got.Pix[0] != &buf.Pix[0] {
		t.Fatalf("scaled output did not reuse the pooled buffer")
	}
	// The recycled buffer must be fully overwritten, never blended with
	// whatever it held before.
	for i, v := range got.Pix {
		if v != 0 {
			t.Fatalf("stale pixel content at byte %d: %#x", i, v)
		}
	}
}

func TestScaleToFitDownscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	got := ScaleToFit(src, &TargetSize{W: 200, H: 200}, 0)
	if got == src {
		t.Fatalf("expected a scaled copy")
	}
	b := got.Bounds()
	if b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("scaled size = %dx%d, want 200x100", b.Dx(), b.Dy())
	}
}
