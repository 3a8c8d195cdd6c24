package session

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voslund/inkboard/config"
	"github.com/voslund/inkboard/domain/audio"
	"github.com/voslund/inkboard/domain/capture"
	"github.com/voslund/inkboard/domain/frame"
	"github.com/voslund/inkboard/domain/source"
	"github.com/voslund/inkboard/domain/video"
)

const (
	eventBufferLength = 64
	reconcileInterval = 100 * time.Millisecond
)

// AudioOutput is what a video session needs from an audio backend. The
// beep-backed audio.Player satisfies it; tests substitute a fake.
type AudioOutput interface {
	Play()
	Pause()
	Position() time.Duration
	Duration() time.Duration
	SetPosition(time.Duration) error
	SetVolume(float64)
	SetMuted(bool)
	Muted() bool
	ToggleMute() bool
	Close() error
}

// Kind discriminates the session variant.
type Kind int

const (
	KindVideo Kind = iota
	KindWindow
	KindMonitor
)

// videoParts exists only on video sessions; audio within it is an explicit
// optional, not an ad hoc nil check scattered through call sites.
type videoParts struct {
	worker *video.Worker
	out    AudioOutput // may be nil; access through audio()
	rate   float64
	total  int
}

func (p *videoParts) audio() (AudioOutput, bool) { return p.out, p.out != nil }

type captureParts struct {
	worker *capture.Worker
}

// Session owns one frame source and its goroutine, and exposes the control
// surface the canvas side drives. Ownership is one-directional: the worker
// publishes into its frame channel and event channel and never references
// the session.
type Session struct {
	id     string
	kind   Kind
	desc   source.Descriptor
	cfg    *config.Config
	logger *slog.Logger
	ch     *frame.Channel

	vid *videoParts
	cap *captureParts

	events chan source.Event
	done   chan struct{}
	now    func() time.Time // test hook

	mu         sync.Mutex
	playing    bool
	scrubbing  bool
	wasPlaying bool
	lastSeek   time.Time
	stopped    bool
}

// OpenVideo creates a video session for path. The decode worker starts
// immediately and sits paused. A file without a usable audio track plays
// silently.
func OpenVideo(path string, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	dec, err := video.Open(path)
	if err != nil {
		return nil, err
	}
	var out AudioOutput
	if p, err := audio.NewPlayer(path, logger); err == nil {
		out = p
	} else if logger != nil {
		logger.Warn("continuing without audio", "path", path, "error", err)
	}
	s := NewVideoSession(dec, out, cfg, logger)
	if d, ok := s.desc.(source.VideoFile); ok {
		d.Path = path
		s.desc = d
	}
	return s, nil
}

// NewVideoSession assembles a video session from its parts. Exported so
// tests can inject a deterministic decoder and audio output.
func NewVideoSession(dec video.Decoder, out AudioOutput, cfg *config.Config, logger *slog.Logger) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := newSession(KindVideo, cfg, logger)
	worker := video.NewWorker(s.id, dec, s.ch, cfg, logger)

	total := worker.TotalFrames()
	rate := worker.Rate()
	if out != nil && out.Duration() > 0 {
		// The audio backend usually knows the duration more precisely than
		// the container frame count.
		total = int(math.Round(out.Duration().Seconds() * rate))
	}
	s.vid = &videoParts{worker: worker, out: out, rate: rate, total: total}
	s.desc = source.VideoFile{TotalFrames: total, Rate: rate}

	worker.Start()
	go s.forward(worker.Events())
	if _, ok := s.vid.audio(); ok {
		go s.reconcileLoop()
	}
	return s
}

// OpenWindow creates a window-capture session. The capture method is fixed
// at creation: window targets use full-content duplication, which renders
// occluded and background windows too.
func OpenWindow(handle uintptr, title string, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	be, err := capture.NewBackend()
	if err != nil {
		return nil, err
	}
	desc := source.Window{Handle: handle, Title: title}
	grab, err := capture.NewWindowGrabber(be, desc)
	if err != nil {
		return nil, err
	}
	return NewCaptureSession(KindWindow, desc, grab, cfg, logger), nil
}

// OpenMonitor creates a monitor-capture session using a whole-region grab.
func OpenMonitor(desc source.Monitor, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	grab, err := capture.NewMonitorGrabber(desc)
	if err != nil {
		return nil, err
	}
	return NewCaptureSession(KindMonitor, desc, grab, cfg, logger), nil
}

// NewCaptureSession assembles a capture session around grab. Exported so
// tests can inject a fake grabber.
func NewCaptureSession(kind Kind, desc source.Descriptor, grab capture.Grabber, cfg *config.Config, logger *slog.Logger) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := newSession(kind, cfg, logger)
	s.desc = desc
	worker := capture.NewWorker(s.id, grab, s.ch, cfg, logger)
	s.cap = &captureParts{worker: worker}
	worker.Start()
	go s.forward(worker.Events())
	return s
}

func newSession(kind Kind, cfg *config.Config, logger *slog.Logger) *Session {
	return &Session{
		id:     uuid.NewString(),
		kind:   kind,
		cfg:    cfg,
		logger: logger,
		ch:     frame.NewChannel(cfg.FrameChannelCapacity),
		events: make(chan source.Event, eventBufferLength),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// ID returns the session identity used in events and logs.
func (s *Session) ID() string { return s.id }

// Kind returns the session variant.
func (s *Session) Kind() Kind { return s.kind }

// Describe returns the immutable source identity.
func (s *Session) Describe() source.Descriptor { return s.desc }

// Frames is the channel the consumer renders from.
func (s *Session) Frames() *frame.Channel { return s.ch }

// Events is the outbound stream of frame-ready, position and error events.
func (s *Session) Events() <-chan source.Event { return s.events }

// Play starts production. Resuming a video seeks to the current position
// first so decode and audio restart together from the same spot.
func (s *Session) Play() {
	if vp, ok := s.videoParts(); ok {
		s.mu.Lock()
		if s.playing || s.stopped {
			s.mu.Unlock()
			return
		}
		s.playing = true
		s.mu.Unlock()

		s.seekNow(vp.worker.Position())
		vp.worker.Play()
		if out, ok := vp.audio(); ok {
			out.Play()
		}
		return
	}
	if cp, ok := s.captureParts(); ok {
		cp.worker.StartCapture()
	}
}

// Pause suspends production, preserving position.
func (s *Session) Pause() {
	if vp, ok := s.videoParts(); ok {
		s.mu.Lock()
		s.playing = false
		s.mu.Unlock()
		vp.worker.Pause()
		if out, ok := vp.audio(); ok {
			out.Pause()
		}
		return
	}
	if cp, ok := s.captureParts(); ok {
		cp.worker.StopCapture()
	}
}

// Playing reports whether production is currently running. For capture
// sessions this reflects the capture gate.
func (s *Session) Playing() bool {
	if _, ok := s.videoParts(); ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.playing
	}
	if cp, ok := s.captureParts(); ok {
		return cp.worker.Capturing()
	}
	return false
}

// Seek requests a reposition to index. Requests arriving within the seek
// cooldown of the previous accepted one are dropped, not queued, to keep a
// drag from saturating the decode pipeline. Reports whether the request
// was accepted.
func (s *Session) Seek(index int) bool {
	if _, ok := s.videoParts(); !ok {
		return false
	}
	s.mu.Lock()
	now := s.now()
	if !s.lastSeek.IsZero() && now.Sub(s.lastSeek) < s.cfg.SeekCooldown() {
		s.mu.Unlock()
		return false
	}
	s.lastSeek = now
	s.mu.Unlock()

	s.seekNow(index)
	return true
}

// seekNow bypasses the cooldown: used by Play, scrub release and audio
// reconciliation, which must not be starved by drag traffic.
func (s *Session) seekNow(index int) {
	vp, ok := s.videoParts()
	if !ok {
		return
	}
	if vp.total > 0 {
		if index < 0 {
			index = 0
		}
		if index > vp.total-1 {
			index = vp.total - 1
		}
	}
	vp.worker.Seek(index)
	if out, ok := vp.audio(); ok {
		pos := time.Duration(float64(index) / vp.rate * float64(time.Second))
		if err := out.SetPosition(pos); err != nil && s.logger != nil {
			s.logger.Warn("audio reposition", "session", s.id, "error", err)
		}
	}
}

// BeginScrub pauses production while the user holds the scrubber.
func (s *Session) BeginScrub() {
	vp, ok := s.videoParts()
	if !ok {
		return
	}
	s.mu.Lock()
	if s.scrubbing {
		s.mu.Unlock()
		return
	}
	s.scrubbing = true
	s.wasPlaying = s.playing
	s.playing = false
	s.mu.Unlock()

	if s.wasPlaying {
		vp.worker.Pause()
		if out, ok := vp.audio(); ok {
			out.Pause()
		}
	}
}

// Scrub issues a rate-limited seek for one drag update.
func (s *Session) Scrub(index int) bool {
	s.mu.Lock()
	scrubbing := s.scrubbing
	s.mu.Unlock()
	if !scrubbing {
		return false
	}
	return s.Seek(index)
}

// EndScrub releases the scrubber at index. Playback resumes only if it was
// playing when the drag began.
func (s *Session) EndScrub(index int) {
	vp, ok := s.videoParts()
	if !ok {
		return
	}
	s.mu.Lock()
	if !s.scrubbing {
		s.mu.Unlock()
		return
	}
	s.scrubbing = false
	resume := s.wasPlaying
	s.playing = resume
	s.mu.Unlock()

	s.seekNow(index)
	if resume {
		vp.worker.Play()
		if out, ok := vp.audio(); ok {
			out.Play()
		}
	}
}

// Resize updates the scaling target consulted by the next produced frame.
func (s *Session) Resize(width, height int) {
	if vp, ok := s.videoParts(); ok {
		vp.worker.Resize(width, height)
		return
	}
	if cp, ok := s.captureParts(); ok {
		cp.worker.Resize(width, height)
	}
}

// RefreshFrame re-delivers the current frame without playing. Used after
// the canvas resizes a paused video.
func (s *Session) RefreshFrame() {
	if vp, ok := s.videoParts(); ok {
		vp.worker.Seek(vp.worker.Position())
	}
}

// Position returns the most recently delivered frame index. Capture
// sessions have no position.
func (s *Session) Position() int {
	if vp, ok := s.videoParts(); ok {
		return vp.worker.Position()
	}
	return -1
}

// TotalFrames returns the frame count video control surfaces range over.
func (s *Session) TotalFrames() int {
	if vp, ok := s.videoParts(); ok {
		return vp.total
	}
	return 0
}

// SetVolume sets linear audio volume in [0,1]. No-op without audio.
func (s *Session) SetVolume(level float64) {
	if vp, ok := s.videoParts(); ok {
		if out, ok := vp.audio(); ok {
			out.SetVolume(level)
		}
	}
}

// ToggleMute flips mute and reports the new state. Sessions without audio
// report false.
func (s *Session) ToggleMute() bool {
	if vp, ok := s.videoParts(); ok {
		if out, ok := vp.audio(); ok {
			return out.ToggleMute()
		}
	}
	return false
}

// SyncAudioPosition reconciles the decode position against one audio
// position report. The report is converted to an equivalent frame index;
// if the decode position differs by more than the configured threshold a
// corrective seek is issued. Neither stream is ever resampled.
func (s *Session) SyncAudioPosition(pos time.Duration) {
	vp, ok := s.videoParts()
	if !ok {
		return
	}
	out, ok := vp.audio()
	if !ok {
		return
	}
	s.mu.Lock()
	busy := s.scrubbing || !s.playing
	s.mu.Unlock()
	if busy {
		return
	}
	dur := out.Duration()
	if dur <= 0 || vp.total <= 0 {
		return
	}
	a := int(math.Round(pos.Seconds() / dur.Seconds() * float64(vp.total)))
	d := vp.worker.Position()
	diff := d - a
	if diff < 0 {
		diff = -diff
	}
	if diff > s.cfg.ReconcileThreshold {
		vp.worker.Seek(a)
	}
}

// Stop terminates the session: the worker goroutine is signaled, joined
// with a bounded timeout, and native resources are released regardless of
// whether the join succeeded. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.playing = false
	s.mu.Unlock()

	timeout := s.cfg.StopJoinTimeout()
	if vp, ok := s.videoParts(); ok {
		vp.worker.Stop(timeout)
		if out, ok := vp.audio(); ok {
			if err := out.Close(); err != nil && s.logger != nil {
				s.logger.Warn("audio close", "session", s.id, "error", err)
			}
		}
	}
	if cp, ok := s.captureParts(); ok {
		cp.worker.Stop(timeout)
	}
	close(s.done)
}

func (s *Session) videoParts() (*videoParts, bool)     { return s.vid, s.vid != nil }
func (s *Session) captureParts() (*captureParts, bool) { return s.cap, s.cap != nil }

// forward relays worker events to the session's subscribers, stamping the
// session id. A fatal error clears the playing flag.
func (s *Session) forward(in <-chan source.Event) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-in:
			if se, ok := ev.(source.SourceError); ok && se.Fatal {
				s.mu.Lock()
				s.playing = false
				s.mu.Unlock()
			}
			select {
			case s.events <- ev:
			default:
			}
		}
	}
}

// reconcileLoop feeds periodic audio position reports into
// SyncAudioPosition while the session is playing.
func (s *Session) reconcileLoop() {
	vp, _ := s.videoParts()
	out, ok := vp.audio()
	if !ok {
		return
	}
	tick := time.NewTicker(reconcileInterval)
	defer tick.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-tick.C:
			s.SyncAudioPosition(out.Position())
		}
	}
}

// ListWindows enumerates capturable windows for the picker surface.
func ListWindows() ([]source.Window, error) {
	be, err := capture.NewBackend()
	if err != nil {
		return nil, err
	}
	return be.ListWindows()
}
