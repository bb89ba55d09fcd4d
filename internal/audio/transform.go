package audio

import (
	"fmt"
	"time"
)

// InvertPhase returns a copy of buf with every sample negated.
// Float negation is exact, so inverting twice restores the input bit for bit.
func InvertPhase(buf *Buffer) *Buffer {
	out := &Buffer{
		Samples:    make([]float32, len(buf.Samples)),
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels,
		BitDepth:   buf.BitDepth,
	}
	for i, s := range buf.Samples {
		out.Samples[i] = -s
	}
	return out
}

// Overlay mixes b into a starting position into a. The result has the
// length of a; whatever part of b runs past the end of a is dropped.
// Sums are clipped to [-1, 1].
func Overlay(a, b *Buffer, position time.Duration) (*Buffer, error) {
	if !a.SameLayout(b) {
		return nil, fmt.Errorf("overlay: layout mismatch %d Hz/%dch vs %d Hz/%dch",
			a.SampleRate, a.Channels, b.SampleRate, b.Channels)
	}
	if position < 0 {
		return nil, fmt.Errorf("overlay: negative position %v", position)
	}

	out := a.Clone()
	if b.BitDepth > out.BitDepth {
		out.BitDepth = b.BitDepth
	}

	offset := int(position/time.Second)*a.SampleRate +
		int((position%time.Second)*time.Duration(a.SampleRate)/time.Second)
	if offset >= a.Frames() {
		return out, nil
	}
	offset *= a.Channels
	for i, s := range b.Samples {
		j := offset + i
		if j >= len(out.Samples) {
			break
		}
		out.Samples[j] = clip(out.Samples[j] + s)
	}
	return out, nil
}

func clip(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// ToInt16 converts normalized samples to int16 PCM.
func ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(clip(s)) * 32768
		if v > 32767 {
			v = 32767
		}
		out[i] = int16(v)
	}
	return out
}

// FromInt16 converts int16 PCM to normalized samples.
func FromInt16(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}
