package audio

import (
	"fmt"
	"math"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
)

// Resample converts buf to the given sample rate, one channel at a time.
// The filter delay is compensated: output frame i sits at input time
// i/rate, and the result holds round(frames*rate/inRate) frames.
func Resample(buf *Buffer, rate int) (*Buffer, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid target rate %d", rate)
	}
	if buf.SampleRate == rate {
		return buf, nil
	}

	ch := buf.Channels
	frames := buf.Frames()
	outFrames := int(math.Round(float64(frames) * float64(rate) / float64(buf.SampleRate)))
	samples := make([]float32, outFrames*ch)
	for c := 0; c < ch; c++ {
		r, err := dspresample.NewForRates(
			float64(buf.SampleRate),
			float64(rate),
			dspresample.WithQuality(dspresample.QualityBest),
		)
		if err != nil {
			return nil, fmt.Errorf("resample %d -> %d: %w", buf.SampleRate, rate, err)
		}
		lead, skip, tail := alignment(r)
		in := make([]float64, lead+frames+tail)
		for i := 0; i < frames; i++ {
			in[lead+i] = float64(buf.Samples[i*ch+c])
		}
		out := r.Process(in)
		for i := 0; i < outFrames && skip+i < len(out); i++ {
			samples[i*ch+c] = clip(float32(out[skip+i]))
		}
	}

	return &Buffer{
		Samples:    samples,
		SampleRate: rate,
		Channels:   ch,
		BitDepth:   buf.BitDepth,
	}, nil
}

// alignment plans a delay-free pass through r. The prototype FIR delays
// the upsampled signal by (taps-1)/2 samples; lead zeros shift that delay
// onto a whole output sample (within half an upsampled sample), skip is
// the number of output samples it then spans, and tail zeros flush the
// filter so the last input frames reach the output.
func alignment(r *dspresample.Resampler) (lead, skip, tail int) {
	up, down := r.Ratio()
	delay2 := len(r.Prototype()) - 1 // twice the delay, in upsampled samples
	best := -1
	for t := 0; t < down; t++ {
		rem := (delay2 + 2*t*up) % (2 * down)
		if d := min(rem, 2*down-rem); best < 0 || d < best {
			best, lead = d, t
		}
		if best <= 1 {
			break
		}
	}
	skip = int(math.Round(float64(delay2+2*lead*up) / float64(2*down)))
	tail = r.TapsPerPhase() + 1
	return lead, skip, tail
}

// fitFrames pads with silence or truncates so buf holds exactly n frames.
func fitFrames(buf *Buffer, n int) *Buffer {
	want := n * buf.Channels
	if len(buf.Samples) == want {
		return buf
	}
	samples := make([]float32, want)
	copy(samples, buf.Samples)
	return &Buffer{
		Samples:    samples,
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels,
		BitDepth:   buf.BitDepth,
	}
}

// ToPlayback converts buf to the fixed 48 kHz stereo int16 layout the
// stream player and its listeners expect.
func ToPlayback(buf *Buffer) ([]int16, error) {
	b, err := Resample(buf, SampleRate)
	if err != nil {
		return nil, err
	}
	frames := b.Frames()
	stereo := make([]float32, frames*Channels)
	switch b.Channels {
	case 1:
		for i := 0; i < frames; i++ {
			stereo[i*2] = b.Samples[i]
			stereo[i*2+1] = b.Samples[i]
		}
	default:
		// Keep the first two channels of anything wider than stereo.
		for i := 0; i < frames; i++ {
			stereo[i*2] = b.Samples[i*b.Channels]
			stereo[i*2+1] = b.Samples[i*b.Channels+1]
		}
	}
	return ToInt16(stereo), nil
}
