// Package app is a minimal preview shell around the media core: it opens
// sessions, drives their control surface, and renders whatever arrives on
// the frame channel. The real annotation canvas and toolbars live outside
// this repository and consume the same surface.
package app

import (
	"bytes"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/vova616/screenshot"

	. "modernc.org/tk9.0"

	"github.com/voslund/inkboard/config"
	"github.com/voslund/inkboard/domain/frame"
	"github.com/voslund/inkboard/domain/session"
	"github.com/voslund/inkboard/domain/source"
)

const (
	tick        = 33 * time.Millisecond
	previewW    = 960
	previewH    = 540
	windowTitle = "inkboard preview"
)

type shell struct {
	cfg    *config.Config
	logger *slog.Logger

	video   *session.Session // optional; only with -video
	capture *session.Session // optional; toggled by Share Screen

	status  *LabelWidget
	preview *LabelWidget
	afterID string
}

// Run opens the preview window and blocks until it is closed. All open
// sessions are stopped on exit.
func Run(cfg *config.Config, logger *slog.Logger, videoPath string) {
	a := &shell{cfg: cfg, logger: logger}

	App.WmTitle(windowTitle)
	WmProtocol(App, "WM_DELETE_WINDOW", a.exit)
	WmGeometry(App, fmt.Sprintf("%dx%d+100+100", previewW, previewH+120))

	a.status = Label(Txt("No session"), Borderwidth(1), Relief("ridge"))
	Pack(a.status, Padx("1m"), Pady("1m"))

	Pack(Button(Txt("Play/Pause"), Command(a.togglePlay)))
	Pack(Button(Txt("Share Screen"), Command(a.toggleShare)))
	Pack(Button(Txt("Exit"), Command(a.exit)))

	if videoPath != "" {
		a.openVideo(videoPath)
	}

	a.schedule()
	App.Wait()
}

func (a *shell) openVideo(path string) {
	s, err := session.OpenVideo(path, a.cfg, a.logger)
	if err != nil {
		a.logger.Error("open video", "path", path, "error", err)
		a.setStatus(fmt.Sprintf("Open failed: %v", err))
		return
	}
	s.Resize(previewW, previewH)
	a.video = s
	a.setStatus(fmt.Sprintf("Loaded %s (%d frames)", s.Describe().Label(), s.TotalFrames()))
}

func (a *shell) togglePlay() {
	s := a.active()
	if s == nil {
		return
	}
	if s.Playing() {
		s.Pause()
		return
	}
	s.Play()
}

func (a *shell) toggleShare() {
	if a.capture != nil {
		a.capture.Stop()
		a.capture = nil
		a.setStatus("Screen share stopped")
		return
	}
	rect, err := screenshot.ScreenRect()
	if err != nil {
		a.logger.Error("screen size", "error", err)
		return
	}
	desc := source.Monitor{
		Left: rect.Min.X, Top: rect.Min.Y,
		Width: rect.Dx(), Height: rect.Dy(),
	}
	s, err := session.OpenMonitor(desc, a.cfg, a.logger)
	if err != nil {
		a.logger.Error("open monitor", "error", err)
		a.setStatus(fmt.Sprintf("Share failed: %v", err))
		return
	}
	s.Resize(previewW, previewH)
	s.Play()
	a.capture = s
	a.setStatus(fmt.Sprintf("Sharing %s", desc.Label()))
}

func (a *shell) active() *session.Session {
	if a.capture != nil {
		return a.capture
	}
	return a.video
}

// update drains the active session's channels and repaints the preview.
func (a *shell) update() {
	s := a.active()
	if s != nil {
		if f, ok := s.Frames().Latest(); ok {
			a.paint(f)
		}
		a.drainEvents(s)
	}
	a.schedule()
}

func (a *shell) drainEvents(s *session.Session) {
	for {
		select {
		case ev := <-s.Events():
			switch e := ev.(type) {
			case source.PositionChanged:
				a.setStatus(fmt.Sprintf("Frame %d / %d", e.Index, s.TotalFrames()))
			case source.SourceError:
				a.logger.Warn("session error", "session", e.SourceID, "fatal", e.Fatal, "error", e.Err)
				a.setStatus(fmt.Sprintf("Error: %v", e.Err))
			}
		default:
			return
		}
	}
}

func (a *shell) paint(f frame.Frame) {
	if f.Image == nil {
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image); err != nil {
		return
	}
	if a.preview == nil {
		a.preview = Label(Image(NewPhoto(Data(buf.Bytes()))), Borderwidth(1), Relief("sunken"))
		Pack(a.preview, Padx("1m"), Pady("1m"))
		return
	}
	func() {
		defer func() { _ = recover() }()
		a.preview.Configure(Image(NewPhoto(Data(buf.Bytes()))))
	}()
}

func (a *shell) setStatus(text string) {
	if a.status == nil {
		return
	}
	func() {
		defer func() { _ = recover() }()
		a.status.Configure(Txt(text))
	}()
}

func (a *shell) schedule() {
	a.afterID = TclAfter(tick, func() { a.update() })
}

func (a *shell) exit() {
	if a.afterID != "" {
		TclAfterCancel(a.afterID)
	}
	if a.video != nil {
		a.video.Stop()
	}
	if a.capture != nil {
		a.capture.Stop()
	}
	Destroy(App)
}
