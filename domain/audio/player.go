package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/zergon321/reisen"

	"github.com/voslund/inkboard/domain/source"
)

// The speaker is a process-wide singleton initialized at the first opened
// file's sample rate; later files at other rates are resampled into it.
var (
	speakerOnce sync.Once
	speakerRate beep.SampleRate
	speakerErr  error
)

// Player plays the audio track of a video file and doubles as the
// session's audio clock: Position is derived from the number of samples
// actually handed to the speaker.
type Player struct {
	rate     beep.SampleRate
	src      *mediaStreamer
	count    *countingStreamer
	ctrl     *beep.Ctrl
	vol      *effects.Volume
	duration time.Duration

	mu    sync.Mutex
	level float64
	muted bool
}

// countingStreamer counts samples streamed so the player can report its
// playback position. It runs under the speaker lock.
type countingStreamer struct {
	s       beep.Streamer
	samples int64
}

func (c *countingStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := c.s.Stream(samples)
	c.samples += int64(n)
	return n, ok
}

func (c *countingStreamer) Err() error { return c.s.Err() }

// NewPlayer opens the audio track of path and starts it paused. Files
// without an audio track return ErrSourceOpen; the caller decides whether
// that is fatal (the session plays video silently).
func NewPlayer(path string, logger *slog.Logger) (*Player, error) {
	media, err := reisen.NewMedia(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", source.ErrSourceOpen, path, err)
	}
	if err := media.OpenDecode(); err != nil {
		media.Close()
		return nil, fmt.Errorf("%w: %s: %v", source.ErrSourceOpen, path, err)
	}
	streams := media.AudioStreams()
	if len(streams) == 0 {
		media.CloseDecode()
		media.Close()
		return nil, fmt.Errorf("%w: %s: no audio stream", source.ErrSourceOpen, path)
	}
	as := streams[0]
	if err := as.Open(); err != nil {
		media.CloseDecode()
		media.Close()
		return nil, fmt.Errorf("%w: %s: %v", source.ErrSourceOpen, path, err)
	}

	rate := beep.SampleRate(as.SampleRate())
	duration := time.Duration(0)
	if d, err := media.Duration(); err == nil {
		duration = d
	}

	speakerOnce.Do(func() {
		speakerRate = rate
		speakerErr = speaker.Init(rate, rate.N(100*time.Millisecond))
	})
	if speakerErr != nil {
		as.Close()
		media.CloseDecode()
		media.Close()
		return nil, fmt.Errorf("%w: speaker: %v", source.ErrSourceOpen, speakerErr)
	}

	p := &Player{
		rate:     rate,
		src:      &mediaStreamer{media: media, stream: as},
		duration: duration,
		level:    1,
	}
	p.count = &countingStreamer{s: p.src}
	p.ctrl = &beep.Ctrl{Streamer: p.count, Paused: true}
	p.vol = &effects.Volume{Streamer: p.ctrl, Base: 2}

	var out beep.Streamer = p.vol
	if rate != speakerRate {
		if logger != nil {
			logger.Debug("resampling audio", "file_rate", rate, "speaker_rate", speakerRate)
		}
		out = beep.Resample(4, rate, speakerRate, p.vol)
	}
	speaker.Play(out)
	return p, nil
}

// Play starts (or resumes) audio output.
func (p *Player) Play() {
	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
}

// Pause suspends audio output, preserving position.
func (p *Player) Pause() {
	speaker.Lock()
	p.ctrl.Paused = true
	speaker.Unlock()
}

// Position reports playback time derived from samples actually streamed.
func (p *Player) Position() time.Duration {
	speaker.Lock()
	n := p.count.samples
	speaker.Unlock()
	return p.rate.D(int(n))
}

// Duration reports the track's total length.
func (p *Player) Duration() time.Duration { return p.duration }

// SetPosition rewinds or fast-forwards the track to pos.
func (p *Player) SetPosition(pos time.Duration) error {
	if pos < 0 {
		pos = 0
	}
	speaker.Lock()
	err := p.src.rewind(pos)
	if err == nil {
		p.count.samples = int64(p.rate.N(pos))
	}
	speaker.Unlock()
	return err
}

// SetVolume sets linear volume in [0,1]. Zero is treated as mute.
func (p *Player) SetVolume(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	p.mu.Lock()
	p.level = level
	muted := p.muted
	p.mu.Unlock()

	speaker.Lock()
	if level == 0 {
		p.vol.Silent = true
	} else {
		p.vol.Silent = muted
		p.vol.Volume = math.Log2(level)
	}
	speaker.Unlock()
}

// SetMuted silences output without losing the volume level.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
	speaker.Lock()
	p.vol.Silent = muted
	speaker.Unlock()
}

// Muted reports whether output is muted.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// ToggleMute flips the mute state and reports the new value.
func (p *Player) ToggleMute() bool {
	p.mu.Lock()
	p.muted = !p.muted
	muted := p.muted
	p.mu.Unlock()
	speaker.Lock()
	p.vol.Silent = muted
	speaker.Unlock()
	return muted
}

// Close detaches the player from the speaker and releases the decoder.
func (p *Player) Close() error {
	speaker.Lock()
	p.ctrl.Paused = true
	p.ctrl.Streamer = nil // drained and dropped by the mixer
	speaker.Unlock()

	p.src.stream.Close()
	p.src.media.CloseDecode()
	p.src.media.Close()
	return nil
}
