package audio

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer is a decoded PCM signal. Samples are interleaved and normalized
// to [-1, 1]. Transforms never modify a Buffer; they return a new one.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
	BitDepth   int // bit depth of the source, used when persisting
}

// NewBuffer wraps interleaved samples. It does not copy.
func NewBuffer(samples []float32, sampleRate, channels, bitDepth int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%d samples do not divide into %d channels", len(samples), channels)
	}
	if bitDepth <= 0 {
		bitDepth = BitDepth
	}
	return &Buffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
		BitDepth:   bitDepth,
	}, nil
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playing time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	out := *b
	out.Samples = make([]float32, len(b.Samples))
	copy(out.Samples, b.Samples)
	return &out
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() float64 {
	var peak float64
	for _, s := range b.Samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return peak
}

// SameLayout reports whether two buffers share sample rate and channel count.
func (b *Buffer) SameLayout(o *Buffer) bool {
	return b.SampleRate == o.SampleRate && b.Channels == o.Channels
}

// Bitrate is a lossy target bitrate in kbit/s.
type Bitrate int

// Supported bitrates, in the order they are offered to the listener.
var Bitrates = []Bitrate{65, 100, 165, 225, 320}

// Valid reports whether b is one of the supported bitrates.
func (b Bitrate) Valid() bool {
	for _, v := range Bitrates {
		if v == b {
			return true
		}
	}
	return false
}

// BitsPerSecond returns the bitrate in bit/s as libopus expects it.
func (b Bitrate) BitsPerSecond() int {
	return int(b) * 1000
}

func (b Bitrate) String() string {
	return strconv.Itoa(int(b)) + "k"
}

// ParseBitrate accepts "165", "165k" or "165kbps".
func ParseBitrate(s string) (Bitrate, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSuffix(s, "kbps")
	s = strings.TrimSuffix(s, "k")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &EncodeError{Op: "parse bitrate", Err: fmt.Errorf("%q: %w", s, err)}
	}
	b := Bitrate(n)
	if !b.Valid() {
		return 0, &EncodeError{Op: "parse bitrate", Err: fmt.Errorf("unsupported bitrate %d kbit/s", n)}
	}
	return b, nil
}

// TrackInfo identifies a file handed to the player.
type TrackInfo struct {
	ID   string
	Path string
	Name string // display name
}
