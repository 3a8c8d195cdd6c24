package video

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voslund/inkboard/config"
	"github.com/voslund/inkboard/domain/frame"
	"github.com/voslund/inkboard/domain/source"
)

const (
	pausedSleep       = 10 * time.Millisecond
	statsLogInterval  = 5 * time.Second
	eventBufferLength = 64
)

// Worker owns one decoder and produces paced frames into a frame.Channel
// on its own goroutine. Control commands (Play/Pause/Seek/Resize/Stop) are
// issued concurrently from the consumer side; only the small flag set
// below crosses the goroutine boundary, everything else is confined to the
// production loop.
type Worker struct {
	id     string
	dec    Decoder
	ch     *frame.Channel
	logger *slog.Logger
	sup    *source.Supervisor
	pacer  *source.Pacer

	total        int
	minScaledDim int

	// Exclusive production region: serializes decode steps against seeks.
	mu          sync.Mutex
	seekPending bool
	seekTarget  int
	cursor      int // next frame index to decode; loop-goroutine only

	running    atomic.Bool
	playing    atomic.Bool
	state      atomic.Int32
	position   atomic.Int64 // last delivered frame index
	targetSize atomic.Pointer[frame.TargetSize]

	sequence  atomic.Uint64
	produced  atomic.Uint64
	failed    atomic.Uint64
	stepNanos atomic.Uint64

	events    chan source.Event
	done      chan struct{}
	closeOnce sync.Once
}

// Stats summarises worker behaviour for instrumentation.
type Stats struct {
	Produced uint64
	Failed   uint64
	AvgStep  time.Duration
	Position int
}

// NewWorker wraps dec. The worker is idle until Start is called and paused
// until Play.
func NewWorker(id string, dec Decoder, ch *frame.Channel, cfg *config.Config, logger *slog.Logger) *Worker {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	rate := source.NormalizeRate(dec.Rate(), cfg.FallbackRate, cfg.MaxPlausibleRate)
	w := &Worker{
		id:           id,
		dec:          dec,
		ch:           ch,
		logger:       logger,
		sup:          source.NewSupervisor(cfg.MaxConsecutiveFailures, cfg.RecoveryDelay(), cfg.ErrorCooldown()),
		pacer:        source.NewPacer(rate),
		total:        dec.TotalFrames(),
		minScaledDim: cfg.MinScaledDim,
		events:       make(chan source.Event, eventBufferLength),
		done:         make(chan struct{}),
	}
	w.state.Store(int32(source.Paused))
	return w
}

// Start launches the production goroutine.
func (w *Worker) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	go w.loop()
}

// Events returns the worker's outbound event stream. Events are dropped,
// never blocked on, when the owner falls behind.
func (w *Worker) Events() <-chan source.Event { return w.events }

// Play resumes cadence production.
func (w *Worker) Play() {
	w.playing.Store(true)
	w.state.Store(int32(source.Playing))
}

// Pause suspends cadence production, preserving position.
func (w *Worker) Pause() {
	w.playing.Store(false)
	w.state.Store(int32(source.Paused))
}

// Seek requests a reposition to index. Only the most recent pending seek
// survives; earlier pending targets are overwritten, never queued.
func (w *Worker) Seek(index int) {
	w.mu.Lock()
	w.seekPending = true
	w.seekTarget = index
	w.mu.Unlock()
	w.state.Store(int32(source.SeekPending))
}

// Resize sets the scaling target consulted by the next produced frame.
func (w *Worker) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		w.targetSize.Store(nil)
		return
	}
	w.targetSize.Store(&frame.TargetSize{W: width, H: height})
}

// Position returns the index of the most recently delivered frame.
func (w *Worker) Position() int { return int(w.position.Load()) }

// State returns the current playback state.
func (w *Worker) State() source.PlaybackState {
	return source.PlaybackState(w.state.Load())
}

// TotalFrames returns the frame count the worker schedules against.
func (w *Worker) TotalFrames() int { return w.total }

// Rate returns the normalized pacing rate in frames per second.
func (w *Worker) Rate() float64 {
	return float64(time.Second) / float64(w.pacer.Period())
}

// Stats returns a snapshot of production counters.
func (w *Worker) Stats() Stats {
	produced := w.produced.Load()
	var avg time.Duration
	if produced > 0 {
		avg = time.Duration(w.stepNanos.Load() / produced)
	}
	return Stats{
		Produced: produced,
		Failed:   w.failed.Load(),
		AvgStep:  avg,
		Position: w.Position(),
	}
}

// Stop signals the production goroutine, waits up to timeout for it to
// exit, and closes the decoder regardless of whether the join succeeded.
// It reports whether the goroutine was observed to exit in time.
func (w *Worker) Stop(timeout time.Duration) bool {
	w.playing.Store(false)
	wasRunning := w.running.Swap(false)
	w.state.Store(int32(source.Stopped))

	joined := true
	if wasRunning {
		select {
		case <-w.done:
		case <-time.After(timeout):
			joined = false
			if w.logger != nil {
				w.logger.Warn("video worker did not exit in time, releasing anyway",
					"source", w.id, "timeout", timeout)
			}
		}
	}
	w.closeOnce.Do(func() {
		if err := w.dec.Close(); err != nil && w.logger != nil {
			w.logger.Warn("decoder close", "source", w.id, "error", err)
		}
	})
	return joined
}

func (w *Worker) loop() {
	defer close(w.done)
	statsTick := time.NewTicker(statsLogInterval)
	defer statsTick.Stop()

	for w.running.Load() {
		if w.consumeSeek() {
			continue
		}
		if !w.playing.Load() {
			time.Sleep(pausedSleep)
			continue
		}
		now := time.Now()
		if !w.pacer.Due(now) {
			time.Sleep(w.pacer.SleepSlice(now))
			continue
		}
		w.step(now)

		select {
		case <-statsTick.C:
			w.logStats()
		default:
		}
	}
}

// step decodes and delivers one frame at the paced cadence.
func (w *Worker) step(now time.Time) {
	start := time.Now()
	w.mu.Lock()
	idx := w.cursor
	img, err := w.dec.ReadFrame()
	if err == nil {
		w.cursor = idx + 1
	}
	w.mu.Unlock()

	if err != nil {
		if err == ErrEndOfStream {
			w.wrapToStart()
			return
		}
		w.fail(err)
		return
	}

	w.sup.Success()
	w.stepNanos.Add(uint64(time.Since(start).Nanoseconds()))
	w.deliver(img, idx)
	w.pacer.Advance(now)

	if w.total > 0 && idx+1 >= w.total {
		w.wrapToStart()
	}
}

// consumeSeek executes at most one coalesced seek: reposition, clear the
// channel, deliver exactly one frame synchronously, reset pacing. Cadence
// production is suspended while a seek is outstanding because the loop
// always services seeks first.
func (w *Worker) consumeSeek() bool {
	w.mu.Lock()
	if !w.seekPending {
		w.mu.Unlock()
		return false
	}
	target := clamp(w.seekTarget, 0, w.total-1)
	w.seekPending = false

	err := w.dec.Seek(target)
	var img *image.RGBA
	if err == nil {
		w.ch.Clear()
		img, err = w.dec.ReadFrame()
	}
	if err == nil {
		w.cursor = target + 1
	}
	w.mu.Unlock()

	if err != nil {
		w.fail(fmt.Errorf("seek to %d: %w", target, err))
		return true
	}

	w.sup.Success()
	w.deliver(img, target)
	w.pacer.Reset(time.Now())
	w.restoreState()
	return true
}

// wrapToStart implements end-of-stream: position wraps to 0 and playback
// pauses (auto-stop, not auto-loop).
func (w *Worker) wrapToStart() {
	w.mu.Lock()
	err := w.dec.Seek(0)
	w.cursor = 0
	w.mu.Unlock()
	if err != nil && w.logger != nil {
		w.logger.Warn("rewind at end of stream", "source", w.id, "error", err)
	}
	w.position.Store(0)
	w.playing.Store(false)
	w.state.Store(int32(source.Paused))
	w.emit(source.PositionChanged{SourceID: w.id, Index: 0})
}

func (w *Worker) deliver(img *image.RGBA, idx int) {
	scaled := frame.ScaleToFit(img, w.targetSize.Load(), w.minScaledDim)
	if scaled != img {
		// The decoded frame was copied into the scaled buffer; recycle the
		// native-size original.
		frame.ReleaseRGBA(img)
	}
	seq := w.sequence.Add(1)
	b := scaled.Bounds()
	w.ch.Push(frame.Frame{
		Image:     scaled,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Sequence:  seq,
		Index:     idx,
		Timestamp: time.Now(),
		SourceID:  w.id,
	})
	w.position.Store(int64(idx))
	w.produced.Add(1)
	w.emit(source.FrameReady{SourceID: w.id, Sequence: seq, Index: idx})
	w.emit(source.PositionChanged{SourceID: w.id, Index: idx})
}

// fail counts one transient failure. At the configured streak the worker
// halts and reports exactly one exhausted-retries error; below it, a
// rate-limited transient report is emitted and a recovery delay inserted.
func (w *Worker) fail(err error) {
	w.failed.Add(1)
	if w.sup.Failure() {
		w.playing.Store(false)
		w.running.Store(false)
		w.state.Store(int32(source.Stopped))
		if w.logger != nil {
			w.logger.Error("video production halted", "source", w.id, "error", err)
		}
		w.emit(source.SourceError{
			SourceID: w.id,
			Err:      fmt.Errorf("%w: %v", source.ErrExhaustedRetries, err),
			Fatal:    true,
		})
		return
	}
	if w.logger != nil {
		w.logger.Warn("video production failed", "source", w.id,
			"consecutive", w.sup.Consecutive(), "error", err)
	}
	if w.sup.AllowReport() {
		w.emit(source.SourceError{SourceID: w.id, Err: err})
	}
	time.Sleep(w.sup.RecoveryDelay())
}

func (w *Worker) restoreState() {
	if w.playing.Load() {
		w.state.Store(int32(source.Playing))
	} else {
		w.state.Store(int32(source.Paused))
	}
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
	w.logger.Debug("video.stats",
		"source", w.id,
		"produced", s.Produced,
		"failed", s.Failed,
		"avg_step", s.AvgStep,
		"position", s.Position,
		"buffered", cs.Len,
		"dropped", cs.Dropped,
	)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
