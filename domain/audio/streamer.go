package audio

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/zergon321/reisen"
)

// sampleBytes is the wire size of one interleaved stereo sample as decoded
// by the audio stream: two little-endian float64 values.
const sampleBytes = 16

// mediaStreamer adapts a decoded audio stream to the speaker's Streamer
// contract. It pumps the demuxer for audio packets and hands out samples
// from the current frame's byte buffer. All methods run under the speaker
// lock, so no internal synchronization is needed.
type mediaStreamer struct {
	media  *reisen.Media
	stream *reisen.AudioStream
	buf    []byte
	off    int
	err    error
}

func (s *mediaStreamer) Stream(samples [][2]float64) (int, bool) {
	n := 0
	for n < len(samples) {
		if s.off+sampleBytes > len(s.buf) {
			if !s.refill() {
				return n, n > 0
			}
		}
		samples[n] = decodeSample(s.buf[s.off:])
		s.off += sampleBytes
		n++
	}
	return n, true
}

func (s *mediaStreamer) Err() error { return s.err }

// refill reads demuxer packets until the audio stream yields a frame.
func (s *mediaStreamer) refill() bool {
	for {
		pkt, gotPacket, err := s.media.ReadPacket()
		if err != nil {
			s.err = err
			return false
		}
		if !gotPacket {
			return false
		}
		if pkt.Type() != reisen.StreamAudio {
			continue
		}
		fr, gotFrame, err := s.stream.ReadAudioFrame()
		if err != nil {
			s.err = err
			return false
		}
		if !gotFrame {
			return false
		}
		if fr == nil {
			continue
		}
		s.buf = fr.Data()
		s.off = 0
		if len(s.buf) >= sampleBytes {
			return true
		}
	}
}

// rewind repositions the stream and discards buffered samples.
func (s *mediaStreamer) rewind(to time.Duration) error {
	if err := s.stream.Rewind(to); err != nil {
		return err
	}
	s.buf = nil
	s.off = 0
	return nil
}

func decodeSample(b []byte) [2]float64 {
	return [2]float64{
		math.Float64frombits(binary.LittleEndian.Uint64(b)),
		math.Float64frombits(binary.LittleEndian.Uint64(b[8:])),
	}
}
