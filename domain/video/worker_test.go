package video

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/voslund/inkboard/config"
	"github.com/voslund/inkboard/domain/frame"
	"github.com/voslund/inkboard/domain/source"
)

// fakeDecoder serves synthetic frames from an in-memory position counter
// and can be told to fail for a while.
type fakeDecoder struct {
	mu        sync.Mutex
	pos       int
	total     int
	rate      float64
	failures  int // remaining ReadFrame errors before recovery
	reads     int
	lastRead  *image.RGBA
	seeks     []int
	closed    bool
	seekError error
}

var _ Decoder = (*fakeDecoder)(nil)

func newFakeDecoder(total int, rate float64) *fakeDecoder {
	return &fakeDecoder{total: total, rate: rate}
}

func (d *fakeDecoder) ReadFrame() (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("decode failed")
	}
	if d.total > 0 && d.pos >= d.total {
		return nil, ErrEndOfStream
	}
	d.pos++
	d.lastRead = image.NewRGBA(image.Rect(0, 0, 4, 4))
	return d.lastRead, nil
}

func (d *fakeDecoder) Seek(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seekError != nil {
		return d.seekError
	}
	d.seeks = append(d.seeks, index)
	d.pos = index
	return nil
}

func (d *fakeDecoder) TotalFrames() int { return d.total }
func (d *fakeDecoder) Rate() float64    { return d.rate }
func (d *fakeDecoder) Size() (int, int) { return 4, 4 }

func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("already closed")
	}
	d.closed = true
	return nil
}

func (d *fakeDecoder) seekLog() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.seeks))
	copy(out, d.seeks)
	return out
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

// newIdleWorker builds a worker whose loop is not started, so tests can
// drive consumeSeek and step deterministically.
func newIdleWorker(t *testing.T, dec Decoder) (*Worker, *frame.Channel) {
	t.Helper()
	ch := frame.NewChannel(3)
	return NewWorker("test", dec, ch, testConfig(), discardLogger()), ch
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

func drainEvents(w *Worker) []source.Event {
	var out []source.Event
	for {
		select {
		case ev := <-w.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSeekCoalescesToLastTarget(t *testing.T) {
	dec := newFakeDecoder(200, 30)
	w, ch := newIdleWorker(t, dec)

	// Stale frames from before the seek.
	w.step(time.Now())
	w.step(time.Now())
	drainEvents(w)

	w.Seek(5)
	w.Seek(9)
	if w.State() != source.SeekPending {
		t.Fatalf("state = %v, want SeekPending", w.State())
	}

	if !w.consumeSeek() {
		t.Fatalf("consumeSeek did not service the pending seek")
	}
	if log := dec.seekLog(); len(log) != 1 || log[0] != 9 {
		t.Fatalf("decoder seeks = %v, want exactly [9]", log)
	}

	// The channel was cleared and holds exactly the one target frame.
	if got := ch.Len(); got != 1 {
		t.Fatalf("channel len after seek = %d, want 1", got)
	}
	f, _ := ch.Pop()
	if f.Index != 9 {
		t.Fatalf("delivered frame index = %d, want 9", f.Index)
	}
	if got := w.Position(); got != 9 {
		t.Fatalf("Position = %d, want 9", got)
	}
	if w.State() != source.Paused {
		t.Fatalf("state after seek while paused = %v, want Paused", w.State())
	}

	// A second pass has nothing to do.
	if w.consumeSeek() {
		t.Fatalf("consumeSeek serviced a seek that was not pending")
	}
}

func TestSeekClampsOutOfRange(t *testing.T) {
	dec := newFakeDecoder(100, 30)
	w, _ := newIdleWorker(t, dec)

	w.Seek(5000)
	w.consumeSeek()
	if log := dec.seekLog(); len(log) != 1 || log[0] != 99 {
		t.Fatalf("decoder seeks = %v, want [99]", log)
	}

	w.Seek(-3)
	w.consumeSeek()
	if log := dec.seekLog(); log[len(log)-1] != 0 {
		t.Fatalf("negative target seeked to %d, want 0", log[len(log)-1])
	}
}

func TestStepAdvancesSequentially(t *testing.T) {
	dec := newFakeDecoder(100, 30)
	w, ch := newIdleWorker(t, dec)

	for i := 0; i < 3; i++ {
		w.step(time.Now())
	}
	for want := 0; want < 3; want++ {
		f, ok := ch.Pop()
		if !ok || f.Index != want {
			t.Fatalf("frame %d: got (%d, %v)", want, f.Index, ok)
		}
		if f.Sequence != uint64(want+1) {
			t.Fatalf("frame %d: sequence = %d, want %d", want, f.Sequence, want+1)
		}
	}
	if got := w.Position(); got != 2 {
		t.Fatalf("Position = %d, want 2", got)
	}
}

func TestExhaustedRetriesEmitsOneFatalError(t *testing.T) {
	dec := newFakeDecoder(100, 30)
	dec.failures = 10
	w, _ := newIdleWorker(t, dec)
	w.playing.Store(true)
	w.running.Store(true)

	for i := 0; i < 3; i++ {
		w.step(time.Now())
	}

	if w.State() != source.Stopped {
		t.Fatalf("state = %v, want Stopped", w.State())
	}
	if w.running.Load() {
		t.Fatalf("worker still marked running after exhaustion")
	}

	var fatal int
	for _, ev := range drainEvents(w) {
		se, ok := ev.(source.SourceError)
		if !ok {
			continue
		}
		if se.Fatal {
			fatal++
			if !errors.Is(se.Err, source.ErrExhaustedRetries) {
				t.Fatalf("fatal error = %v, want ErrExhaustedRetries", se.Err)
			}
		}
	}
	if fatal != 1 {
		t.Fatalf("fatal error events = %d, want exactly 1", fatal)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	dec := newFakeDecoder(100, 30)
	dec.failures = 2
	w, _ := newIdleWorker(t, dec)

	w.step(time.Now()) // fail 1
	w.step(time.Now()) // fail 2
	w.step(time.Now()) // success, streak resets

	if w.State() == source.Stopped {
		t.Fatalf("worker halted although the streak was broken")
	}
	if got := w.Stats().Failed; got != 2 {
		t.Fatalf("failed counter = %d, want 2", got)
	}
}

func TestEndOfStreamWrapsAndPauses(t *testing.T) {
	dec := newFakeDecoder(3, 30)
	w, _ := newIdleWorker(t, dec)
	w.playing.Store(true)
	w.state.Store(int32(source.Playing))

	// Frames 0 and 1 play normally; frame 2 is the last and wraps.
	w.step(time.Now())
	w.step(time.Now())
	w.step(time.Now())

	if w.playing.Load() {
		t.Fatalf("still playing after end of stream")
	}
	if w.State() != source.Paused {
		t.Fatalf("state = %v, want Paused", w.State())
	}
	if got := w.Position(); got != 0 {
		t.Fatalf("Position = %d, want wrap to 0", got)
	}
	log := dec.seekLog()
	if len(log) == 0 || log[len(log)-1] != 0 {
		t.Fatalf("decoder not rewound to 0 at end of stream, seeks = %v", log)
	}

	// Resuming replays from the start.
	w.playing.Store(true)
	w.step(time.Now())
	if got := w.Position(); got != 0 {
		t.Fatalf("first frame after wrap = %d, want 0", got)
	}
}

func TestResizeScalesDeliveredFrames(t *testing.T) {
	dec := newFakeDecoder(100, 30)
	w, ch := newIdleWorker(t, dec)
	// Source frames are 4x4; the min-dimension floor is what actually
	// bounds the output here.
	w.Resize(2, 2)

	w.step(time.Now())
	f, ok := ch.Pop()
	if !ok {
		t.Fatalf("no frame delivered")
	}
	wantDim := testConfig().MinScaledDim
	if f.Width != wantDim || f.Height != wantDim {
		t.Fatalf("scaled frame = %dx%d, want %dx%d floor", f.Width, f.Height, wantDim, wantDim)
	}
}

func TestDeliverRecyclesDecodedBuffer(t *testing.T) {
	dec := newFakeDecoder(100, 30)
	w, ch := newIdleWorker(t, dec)
	w.Resize(50, 50) // forces a scaled copy of the decoded frame

	w.step(time.Now())
	f, ok := ch.Pop()
	if !ok {
		t.Fatalf("no frame delivered")
	}
	dec.mu.Lock()
	decoded := dec.lastRead
	dec.mu.Unlock()
	if f.Image == decoded {
		t.Fatalf("native-size decode published instead of the scaled copy")
	}

	// The decoded buffer is unreferenced after scaling and must be back in
	// the pool.
	got := frame.AcquireRGBA(image.Rect(0, 0, 4, 4))
	if &got.Pix[0] != &decoded.Pix[0] {
		t.Fatalf("decoded frame buffer was not returned to the pool")
	}
}

func TestStopJoinsAndClosesDecoder(t *testing.T) {
	dec := newFakeDecoder(100, 30)
	w, _ := newIdleWorker(t, dec)
	w.Start()
	w.Play()
	waitFor(t, time.Second, func() bool { return w.Stats().Produced > 0 })

	if !w.Stop(time.Second) {
		t.Fatalf("Stop did not observe the goroutine exit")
	}
	if !dec.closed {
		t.Fatalf("decoder not closed on Stop")
	}
	// Idempotent: the second Stop must not close the decoder again.
	if !w.Stop(time.Second) {
		t.Fatalf("second Stop reported a failed join")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	dec := newFakeDecoder(100, 30)
	w, _ := newIdleWorker(t, dec)
	w.Start()
	w.Start() // second call must not spawn another loop
	defer w.Stop(time.Second)

	w.Play()
	waitFor(t, time.Second, func() bool { return w.Stats().Produced >= 2 })
}

func TestSeekFailureCountsAgainstSupervisor(t *testing.T) {
	dec := newFakeDecoder(100, 30)
	dec.seekError = fmt.Errorf("container refused")
	w, _ := newIdleWorker(t, dec)
	w.running.Store(true)

	for i := 0; i < 3; i++ {
		w.Seek(10)
		w.consumeSeek()
	}
	if w.State() != source.Stopped {
		t.Fatalf("state = %v, want Stopped after repeated seek failures", w.State())
	}
}
