package video

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/zergon321/reisen"

	"github.com/voslund/inkboard/domain/source"
)

// ffmpeg-backed decoder. One media handle per decoder; the audio player
// opens its own handle on the same file, mirroring how separate decode and
// audio backends coexisted before.
type fileDecoder struct {
	media  *reisen.Media
	stream *reisen.VideoStream
	rate   float64
	total  int
	width  int
	height int
}

// Open opens path for decoding and positions it at frame 0.
func Open(path string) (Decoder, error) {
	media, err := reisen.NewMedia(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", source.ErrSourceOpen, path, err)
	}
	if err := media.OpenDecode(); err != nil {
		media.Close()
		return nil, fmt.Errorf("%w: %s: %v", source.ErrSourceOpen, path, err)
	}
	streams := media.VideoStreams()
	if len(streams) == 0 {
		media.CloseDecode()
		media.Close()
		return nil, fmt.Errorf("%w: %s: no video stream", source.ErrSourceOpen, path)
	}
	vs := streams[0]
	if err := vs.Open(); err != nil {
		media.CloseDecode()
		media.Close()
		return nil, fmt.Errorf("%w: %s: %v", source.ErrSourceOpen, path, err)
	}

	num, den := vs.FrameRate()
	rate := 0.0
	if den != 0 {
		rate = float64(num) / float64(den)
	}
	// Containers do not reliably report a frame count; derive it from the
	// duration at an effective rate.
	effective := source.NormalizeRate(rate, 30, 120)
	total := 0
	if dur, err := media.Duration(); err == nil && dur > 0 {
		total = int(math.Round(dur.Seconds() * effective))
	}

	return &fileDecoder{
		media:  media,
		stream: vs,
		rate:   rate,
		total:  total,
		width:  vs.Width(),
		height: vs.Height(),
	}, nil
}

// ReadFrame pumps the demuxer until the opened video stream yields a frame.
func (d *fileDecoder) ReadFrame() (*image.RGBA, error) {
	for {
		pkt, gotPacket, err := d.media.ReadPacket()
		if err != nil {
			return nil, fmt.Errorf("read packet: %w", err)
		}
		if !gotPacket {
			return nil, ErrEndOfStream
		}
		if pkt.Type() != reisen.StreamVideo {
			continue
		}
		fr, gotFrame, err := d.stream.ReadVideoFrame()
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		if !gotFrame {
			return nil, ErrEndOfStream
		}
		if fr == nil {
			continue
		}
		return fr.Image(), nil
	}
}

func (d *fileDecoder) Seek(index int) error {
	rate := source.NormalizeRate(d.rate, 30, 120)
	off := time.Duration(float64(index) / rate * float64(time.Second))
	if err := d.stream.Rewind(off); err != nil {
		return fmt.Errorf("rewind to frame %d: %w", index, err)
	}
	return nil
}

func (d *fileDecoder) TotalFrames() int { return d.total }

func (d *fileDecoder) Rate() float64 { return d.rate }

func (d *fileDecoder) Size() (int, int) { return d.width, d.height }

func (d *fileDecoder) Close() error {
	d.stream.Close()
	d.media.CloseDecode()
	d.media.Close()
	return nil
}
