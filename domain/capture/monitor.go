package capture

import (
	"fmt"
	"image"

	"github.com/vova616/screenshot"

	"github.com/voslund/inkboard/domain/source"
)

// MonitorGrabber captures a fixed screen region via a whole-region grab.
// Monitors do not disappear the way windows do, so CheckLive always
// succeeds and every grab failure is transient.
type MonitorGrabber struct {
	rect image.Rectangle
}

// NewMonitorGrabber validates the region against the current screen bounds.
func NewMonitorGrabber(desc source.Monitor) (*MonitorGrabber, error) {
	r := desc.Rect()
	if r.Empty() {
		return nil, fmt.Errorf("%w: empty monitor region %v", source.ErrSourceOpen, r)
	}
	screen, err := screenshot.ScreenRect()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrSourceOpen, err)
	}
	if r.Intersect(screen).Empty() {
		return nil, fmt.Errorf("%w: region %v outside screen %v", source.ErrSourceOpen, r, screen)
	}
	return &MonitorGrabber{rect: r}, nil
}

func (g *MonitorGrabber) CheckLive() error { return nil }

func (g *MonitorGrabber) SourceSize() (int, int) {
	return g.rect.Dx(), g.rect.Dy()
}

func (g *MonitorGrabber) Grab() (*image.RGBA, error) {
	img, err := screenshot.CaptureRect(g.rect)
	if err != nil {
		return nil, fmt.Errorf("monitor grab %v: %w", g.rect, err)
	}
	return img, nil
}

func (g *MonitorGrabber) Close() error { return nil }
