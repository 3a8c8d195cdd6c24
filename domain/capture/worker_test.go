package capture

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voslund/inkboard/config"
	"github.com/voslund/inkboard/domain/frame"
	"github.com/voslund/inkboard/domain/source"
)

// fakeGrabber serves synthetic frames and can simulate a vanished target or
// a failing grab.
type fakeGrabber struct {
	mu       sync.Mutex
	grabs    int
	lastGrab *image.RGBA
	lost     atomic.Bool
	failing  atomic.Bool
	closed   atomic.Bool
}

var _ Grabber = (*fakeGrabber)(nil)

func (g *fakeGrabber) CheckLive() error {
	if g.lost.Load() {
		return fmt.Errorf("%w: test window", source.ErrTargetLost)
	}
	return nil
}

func (g *fakeGrabber) Grab() (*image.RGBA, error) {
	if g.failing.Load() {
		g.mu.Lock()
		g.grabs++
		g.mu.Unlock()
		return nil, errors.New("grab failed")
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	g.mu.Lock()
	g.grabs++
	g.lastGrab = img
	g.mu.Unlock()
	return img, nil
}

func (g *fakeGrabber) SourceSize() (int, int) { return 8, 8 }

func (g *fakeGrabber) Close() error {
	g.closed.Store(true)
	return nil
}

func (g *fakeGrabber) grabCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.grabs
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.RecoveryDelayMS = 1
	cfg.ErrorCooldownMS = 1
	return cfg
}

func newTestWorker(grab Grabber) (*Worker, *frame.Channel) {
	ch := frame.NewChannel(3)
	return NewWorker("test", grab, ch, testConfig(), discardLogger()), ch
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", timeout)
}

func TestWorkerIdlesUntilCaptureStarts(t *testing.T) {
	grab := &fakeGrabber{}
	w, _ := newTestWorker(grab)
	w.Start()
	defer w.Stop(time.Second)

	time.Sleep(30 * time.Millisecond)
	if got := grab.grabCount(); got != 0 {
		t.Fatalf("grabbed %d frames while idle, want 0", got)
	}
	if w.Capturing() {
		t.Fatalf("Capturing before StartCapture")
	}

	w.StartCapture()
	waitFor(t, time.Second, func() bool { return w.Stats().Produced > 0 })
	if w.State() != source.Capturing {
		t.Fatalf("state = %v, want Capturing", w.State())
	}
}

func TestStopCaptureSuspendsWithoutStoppingGoroutine(t *testing.T) {
	grab := &fakeGrabber{}
	w, _ := newTestWorker(grab)
	w.Start()
	defer w.Stop(time.Second)

	w.StartCapture()
	waitFor(t, time.Second, func() bool { return w.Stats().Produced > 0 })

	w.StopCapture()
	if w.State() != source.CaptureIdle {
		t.Fatalf("state = %v, want CaptureIdle", w.State())
	}
	// Give in-flight grabs a moment to settle, then verify production has
	// actually paused.
	time.Sleep(30 * time.Millisecond)
	before := grab.grabCount()
	time.Sleep(50 * time.Millisecond)
	if after := grab.grabCount(); after != before {
		t.Fatalf("grabbed %d frames while suspended", after-before)
	}

	// Re-enabling works on the same goroutine.
	produced := w.Stats().Produced
	w.StartCapture()
	waitFor(t, time.Second, func() bool { return w.Stats().Produced > produced })
}

func TestTargetLostStopsWorkerFatally(t *testing.T) {
	grab := &fakeGrabber{}
	w, _ := newTestWorker(grab)
	w.Start()
	w.StartCapture()
	waitFor(t, time.Second, func() bool { return w.Stats().Produced > 0 })

	grab.lost.Store(true)
	waitFor(t, time.Second, func() bool { return w.State() == source.CaptureError })

	// The goroutine is gone; no further grab attempts happen.
	time.Sleep(30 * time.Millisecond)
	count := grab.grabCount()
	time.Sleep(50 * time.Millisecond)
	if after := grab.grabCount(); after != count {
		t.Fatalf("grabbed %d frames after target loss", after-count)
	}

	var sawFatal bool
	for done := false; !done; {
		select {
		case ev := <-w.Events():
			if se, ok := ev.(source.SourceError); ok && se.Fatal {
				sawFatal = true
				if !errors.Is(se.Err, source.ErrTargetLost) {
					t.Fatalf("fatal error = %v, want ErrTargetLost", se.Err)
				}
			}
		default:
			done = true
		}
	}
	if !sawFatal {
		t.Fatalf("no fatal event after target loss")
	}

	if !w.Stop(time.Second) {
		t.Fatalf("Stop failed to join an already-exited goroutine")
	}
}

func TestRepeatedGrabFailuresHaltCapture(t *testing.T) {
	grab := &fakeGrabber{}
	grab.failing.Store(true)
	w, _ := newTestWorker(grab)
	w.Start()
	w.StartCapture()

	waitFor(t, time.Second, func() bool { return w.State() == source.CaptureError })
	if got := w.Stats().Failed; got < 3 {
		t.Fatalf("failed counter = %d, want >= 3", got)
	}

	var fatal int
	for done := false; !done; {
		select {
		case ev := <-w.Events():
			if se, ok := ev.(source.SourceError); ok && se.Fatal {
				fatal++
				if !errors.Is(se.Err, source.ErrExhaustedRetries) {
					t.Fatalf("fatal error = %v, want ErrExhaustedRetries", se.Err)
				}
			}
		default:
			done = true
		}
	}
	if fatal != 1 {
		t.Fatalf("fatal events = %d, want exactly 1", fatal)
	}
	w.Stop(time.Second)
}

func TestStepRecyclesNativeGrabBuffer(t *testing.T) {
	grab := &fakeGrabber{}
	w, ch := newTestWorker(grab)
	w.Resize(50, 50) // forces a scaled copy of the native grab

	w.step(time.Now())
	f, ok := ch.Pop()
	if !ok {
		t.Fatalf("no frame delivered")
	}
	grab.mu.Lock()
	native := grab.lastGrab
	grab.mu.Unlock()
	if f.Image == native {
		t.Fatalf("native-size grab published instead of the scaled copy")
	}

	// The native buffer is no longer referenced and must be back in the
	// pool for the next grab.
	got := frame.AcquireRGBA(image.Rect(0, 0, 8, 8))
	if &got.Pix[0] != &native.Pix[0] {
		t.Fatalf("native grab buffer was not returned to the pool")
	}
}

func TestStopClosesGrabberOnce(t *testing.T) {
	grab := &fakeGrabber{}
	w, _ := newTestWorker(grab)
	w.Start()
	if !w.Stop(time.Second) {
		t.Fatalf("Stop did not observe the goroutine exit")
	}
	if !grab.closed.Load() {
		t.Fatalf("grabber not closed on Stop")
	}
	w.Stop(time.Second) // idempotent
}

func TestCapturedFramesCarrySentinelIndex(t *testing.T) {
	grab := &fakeGrabber{}
	w, ch := newTestWorker(grab)
	w.Start()
	defer w.Stop(time.Second)
	w.StartCapture()

	waitFor(t, time.Second, func() bool { return ch.Len() > 0 })
	f, ok := ch.Latest()
	if !ok {
		t.Fatalf("no frame buffered")
	}
	if f.Index != -1 {
		t.Fatalf("capture frame index = %d, want -1", f.Index)
	}
	if f.SourceID != "test" {
		t.Fatalf("SourceID = %q, want %q", f.SourceID, "test")
	}
}
