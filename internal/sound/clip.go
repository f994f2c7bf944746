// Package sound plays the audio cue that accompanies particle emissions.
package sound

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DefaultSampleRate is the playback rate of the audio context.
const DefaultSampleRate = 44100

// ErrInvalidWAV is returned for input that is not a PCM WAV file.
var ErrInvalidWAV = errors.New("invalid WAV file")

// Clip is decoded audio as 16-bit little-endian interleaved stereo PCM, the
// layout the playback context consumes.
type Clip struct {
	SampleRate int
	PCM        []byte
}

// Frames returns the number of stereo frames.
func (c *Clip) Frames() int {
	return len(c.PCM) / 4
}

// Duration returns the playback length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// LoadWAV decodes a WAV file from disk.
func LoadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	clip, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clip, nil
}

// DecodeWAV reads 8, 16, 24 or 32-bit PCM of any channel count. Mono is
// duplicated to both channels; channels beyond the second are dropped.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	channels := int(decoder.NumChans)
	if channels == 0 || buf.Format == nil {
		return nil, ErrInvalidWAV
	}

	depth := int(decoder.BitDepth)
	if depth == 0 {
		depth = buf.SourceBitDepth
	}
	return fromIntBuffer(buf, channels, depth)
}

func fromIntBuffer(buf *audio.IntBuffer, channels, depth int) (*Clip, error) {
	if depth != 8 && depth != 16 && depth != 24 && depth != 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, depth)
	}

	frames := len(buf.Data) / channels
	pcm := make([]byte, frames*4)
	for i := 0; i < frames; i++ {
		l := to16(buf.Data[i*channels], depth)
		r := l
		if channels > 1 {
			r = to16(buf.Data[i*channels+1], depth)
		}
		binary.LittleEndian.PutUint16(pcm[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(pcm[i*4+2:], uint16(r))
	}
	return &Clip{SampleRate: buf.Format.SampleRate, PCM: pcm}, nil
}

// to16 rescales a sample of the given bit depth to int16. 8-bit WAV data
// is unsigned.
func to16(v, depth int) int16 {
	switch depth {
	case 8:
		return int16((v - 128) << 8)
	case 16:
		return int16(v)
	default:
		return int16(v >> (depth - 16))
	}
}

// Resample returns the clip converted to rate with linear interpolation.
func (c *Clip) Resample(rate int) *Clip {
	if rate <= 0 || rate == c.SampleRate || c.Frames() == 0 {
		return c
	}

	in := c.Frames()
	out := int(math.Round(float64(in) * float64(rate) / float64(c.SampleRate)))
	pcm := make([]byte, out*4)
	step := float64(c.SampleRate) / float64(rate)

	sample := func(frame, ch int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(c.PCM[frame*4+ch*2:])))
	}
	for i := 0; i < out; i++ {
		pos := float64(i) * step
		i0 := int(pos)
		if i0 >= in-1 {
			i0 = in - 1
		}
		i1 := min(i0+1, in-1)
		frac := pos - float64(i0)
		for ch := 0; ch < 2; ch++ {
			v := sample(i0, ch)*(1-frac) + sample(i1, ch)*frac
			binary.LittleEndian.PutUint16(pcm[i*4+ch*2:], uint16(int16(math.Round(v))))
		}
	}
	return &Clip{SampleRate: rate, PCM: pcm}
}

// Chime synthesises a short decaying two-tone ping, used when no clip file
// is configured.
func Chime(rate int) *Clip {
	const seconds = 0.4
	frames := int(seconds * float64(rate))
	pcm := make([]byte, frames*4)
	for i := 0; i < frames; i++ {
		t := float64(i) / float64(rate)
		env := math.Exp(-t * 9)
		v := 0.35 * env * (math.Sin(2*math.Pi*880*t) + 0.5*math.Sin(2*math.Pi*1320*t))
		s := uint16(int16(v * math.MaxInt16))
		binary.LittleEndian.PutUint16(pcm[i*4:], s)
		binary.LittleEndian.PutUint16(pcm[i*4+2:], s)
	}
	return &Clip{SampleRate: rate, PCM: pcm}
}
