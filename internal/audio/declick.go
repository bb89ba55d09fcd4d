package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// FadeOut ramps a frame from full level to silence along a smoothstep curve.
// It is applied to the last frame of an interrupted item so switching
// between A/B/X/Y does not produce a click that could give the answer away.
func FadeOut(frame []int16, channels int) []int16 {
	return fade(frame, channels, func(p float64) float64 { return 1 - Smoothstep(p) })
}

// FadeIn ramps a frame from silence to full level.
func FadeIn(frame []int16, channels int) []int16 {
	return fade(frame, channels, Smoothstep)
}

func fade(frame []int16, channels int, gainAt func(float64) float64) []int16 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(frame) / channels
	result := make([]int16, len(frame))
	for i := 0; i < frames; i++ {
		gain := gainAt(float64(i) / float64(frames))
		for c := 0; c < channels; c++ {
			idx := i*channels + c
			v := float64(frame[idx]) * gain
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			result[idx] = int16(v)
		}
	}
	return result
}
