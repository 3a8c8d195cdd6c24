package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voslund/inkboard/config"
	"github.com/voslund/inkboard/domain/frame"
	"github.com/voslund/inkboard/domain/source"
)

const (
	idleSleep         = 100 * time.Millisecond
	statsLogInterval  = 5 * time.Second
	eventBufferLength = 64
)

// Worker drives one Grabber on its own goroutine at a nominal capture rate,
// skipping attempts when production falls behind a coarser threshold. The
// worker idles until capture is enabled; enabling and disabling capture is
// independent of the goroutine's lifetime.
type Worker struct {
	id     string
	grab   Grabber
	ch     *frame.Channel
	logger *slog.Logger
	sup    *source.Supervisor
	pacer  *source.Pacer

	skipThreshold time.Duration
	minScaledDim  int

	running    atomic.Bool
	capturing  atomic.Bool
	state      atomic.Int32
	targetSize atomic.Pointer[frame.TargetSize]

	sequence  atomic.Uint64
	produced  atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
	grabNanos atomic.Uint64

	events    chan source.Event
	done      chan struct{}
	closeOnce sync.Once
}

// Stats summarises capture loop behaviour for instrumentation.
type Stats struct {
	Produced uint64
	Skipped  uint64
	Failed   uint64
	AvgGrab  time.Duration
}

// NewWorker wraps grab. The worker goroutine starts with Start but stays
// idle until StartCapture.
func NewWorker(id string, grab Grabber, ch *frame.Channel, cfg *config.Config, logger *slog.Logger) *Worker {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	w := &Worker{
		id:            id,
		grab:          grab,
		ch:            ch,
		logger:        logger,
		sup:           source.NewSupervisor(cfg.MaxConsecutiveFailures, cfg.RecoveryDelay(), cfg.ErrorCooldown()),
		pacer:         source.NewPacer(cfg.CaptureRate),
		skipThreshold: time.Duration(float64(time.Second) / cfg.CaptureSkipRate),
		minScaledDim:  cfg.MinScaledDim,
		events:        make(chan source.Event, eventBufferLength),
		done:          make(chan struct{}),
	}
	w.state.Store(int32(source.CaptureIdle))
	return w
}

// Start launches the capture goroutine.
func (w *Worker) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	go w.loop()
}

// Events returns the worker's outbound event stream.
func (w *Worker) Events() <-chan source.Event { return w.events }

// StartCapture enables frame production.
func (w *Worker) StartCapture() {
	w.capturing.Store(true)
	w.state.Store(int32(source.Capturing))
}

// StopCapture suspends frame production without stopping the goroutine.
func (w *Worker) StopCapture() {
	w.capturing.Store(false)
	w.state.Store(int32(source.CaptureIdle))
}

// Capturing reports whether frames are currently being produced.
func (w *Worker) Capturing() bool {
	return w.capturing.Load()
}

// Resize sets the scaling target consulted by the next captured frame.
func (w *Worker) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		w.targetSize.Store(nil)
		return
	}
	w.targetSize.Store(&frame.TargetSize{W: width, H: height})
}

// State returns the current capture state.
func (w *Worker) State() source.CaptureState {
	return source.CaptureState(w.state.Load())
}

// Stats returns a snapshot of capture counters.
func (w *Worker) Stats() Stats {
	produced := w.produced.Load()
	var avg time.Duration
	if produced > 0 {
		avg = time.Duration(w.grabNanos.Load() / produced)
	}
	return Stats{
		Produced: produced,
		Skipped:  w.skipped.Load(),
		Failed:   w.failed.Load(),
		AvgGrab:  avg,
	}
}

// Stop signals the goroutine, waits up to timeout for it to exit, and
// closes the grabber regardless of whether the join succeeded.
func (w *Worker) Stop(timeout time.Duration) bool {
	w.capturing.Store(false)
	wasRunning := w.running.Swap(false)

	joined := true
	if wasRunning {
		select {
		case <-w.done:
		case <-time.After(timeout):
			joined = false
			if w.logger != nil {
				w.logger.Warn("capture worker did not exit in time, releasing anyway",
					"source", w.id, "timeout", timeout)
			}
		}
	}
	w.closeOnce.Do(func() {
		if err := w.grab.Close(); err != nil && w.logger != nil {
			w.logger.Warn("grabber close", "source", w.id, "error", err)
		}
	})
	return joined
}

func (w *Worker) loop() {
	defer close(w.done)
	statsTick := time.NewTicker(statsLogInterval)
	defer statsTick.Stop()

	for w.running.Load() {
		if !w.capturing.Load() {
			time.Sleep(idleSleep)
			continue
		}
		now := time.Now()
		if !w.pacer.Due(now) {
			time.Sleep(w.pacer.SleepSlice(now))
			continue
		}
		if w.pacer.Lag(now) > w.skipThreshold {
			// Production fell behind; skip this attempt instead of
			// replaying the backlog.
			w.pacer.Reset(now)
			w.skipped.Add(1)
			continue
		}
		if err := w.grab.CheckLive(); err != nil {
			w.fatal(err)
			return
		}
		w.step(now)

		select {
		case <-statsTick.C:
			w.logStats()
		default:
		}
	}
}

func (w *Worker) step(now time.Time) {
	start := time.Now()
	img, err := w.grab.Grab()
	if err != nil {
		w.fail(err)
		return
	}
	w.sup.Success()
	w.grabNanos.Add(uint64(time.Since(start).Nanoseconds()))

	scaled := frame.ScaleToFit(img, w.targetSize.Load(), w.minScaledDim)
	if scaled != img {
		// The native-size grab was copied into the scaled buffer and is no
		// longer referenced anywhere.
		frame.ReleaseRGBA(img)
	}
	seq := w.sequence.Add(1)
	b := scaled.Bounds()
	w.ch.Push(frame.Frame{
		Image:     scaled,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Sequence:  seq,
		Index:     -1,
		Timestamp: time.Now(),
		SourceID:  w.id,
	})
	w.produced.Add(1)
	w.emit(source.FrameReady{SourceID: w.id, Sequence: seq, Index: -1})
	w.pacer.Advance(now)
}

// fail counts one transient capture failure, halting after the configured
// streak with exactly one exhausted-retries report.
func (w *Worker) fail(err error) {
	w.failed.Add(1)
	if w.sup.Failure() {
		w.capturing.Store(false)
		w.running.Store(false)
		w.state.Store(int32(source.CaptureError))
		if w.logger != nil {
			w.logger.Error("capture halted", "source", w.id, "error", err)
		}
		w.emit(source.SourceError{
			SourceID: w.id,
			Err:      fmt.Errorf("%w: %v", source.ErrExhaustedRetries, err),
			Fatal:    true,
		})
		return
	}
	if w.logger != nil {
		w.logger.Warn("capture failed", "source", w.id,
			"consecutive", w.sup.Consecutive(), "error", err)
	}
	if w.sup.AllowReport() {
		w.emit(source.SourceError{SourceID: w.id, Err: err})
	}
	time.Sleep(w.sup.RecoveryDelay())
}

// fatal stops the worker without retrying. Used when the capture target is
// gone.
func (w *Worker) fatal(err error) {
	w.capturing.Store(false)
	w.running.Store(false)
	w.state.Store(int32(source.CaptureError))
	if w.logger != nil {
		w.logger.Error("capture target lost", "source", w.id, "error", err)
	}
	w.emit(source.SourceError{SourceID: w.id, Err: err, Fatal: true})
}

func (w *Worker) emit(ev source.Event) {
	select {
	case w.events <- ev:
	default:
	}
}

func (w *Worker) logStats() {
	if w.logger == nil {
		return
	}
	s := w.Stats()
	cs := w.ch.Stats()
	w.logger.Debug("capture.stats",
		"source", w.id,
		"produced", s.Produced,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"avg_grab", s.AvgGrab,
		"buffered", cs.Len,
		"dropped", cs.Dropped,
	)
}
