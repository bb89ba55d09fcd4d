package audio

import (
	"testing"
	"time"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

// --- Smoothstep ---

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		got := Smoothstep(tt.input)
		if got != tt.want {
			t.Errorf("Smoothstep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSmoothstepMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 100; i++ {
		x := float64(i) / 100.0
		val := Smoothstep(x)
		if val < prev {
			t.Errorf("Smoothstep not monotonic: f(%v)=%v < f(%v)=%v", x, val, float64(i-1)/100.0, prev)
		}
		prev = val
	}
}

func TestSmoothstepSymmetry(t *testing.T) {
	// Smoothstep is symmetric around 0.5: f(0.5+d) + f(0.5-d) = 1
	for _, d := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		sum := Smoothstep(0.5+d) + Smoothstep(0.5-d)
		if diff := sum - 1.0; diff > 1e-10 || diff < -1e-10 {
			t.Errorf("Smoothstep symmetry broken at d=%v: sum=%v", d, sum)
		}
	}
}

// --- FadeIn / FadeOut ---

func TestFadeOutEndsSilent(t *testing.T) {
	frame := make([]int16, FrameSamples)
	for i := range frame {
		frame[i] = 10000
	}
	out := FadeOut(frame, Channels)
	if out[0] != 10000 || out[1] != 10000 {
		t.Errorf("FadeOut first sample = %d/%d, want 10000", out[0], out[1])
	}
	last := out[len(out)-2:]
	for _, v := range last {
		if v < 0 || v > 10 {
			t.Errorf("FadeOut last sample = %d, want ~0", v)
		}
	}
	if frame[len(frame)-1] != 10000 {
		t.Error("FadeOut modified its input")
	}
}

func TestFadeInStartsSilent(t *testing.T) {
	frame := make([]int16, FrameSamples)
	for i := range frame {
		frame[i] = -10000
	}
	out := FadeIn(frame, Channels)
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("FadeIn first sample = %d/%d, want 0", out[0], out[1])
	}
	prev := int16(0)
	for i := 0; i < len(out); i += Channels {
		if out[i] > prev {
			t.Fatalf("FadeIn not monotonic at %d: %d after %d", i, out[i], prev)
		}
		prev = out[i]
	}
}

// --- SamplesToBytes / round-trip ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// Verify little-endian encoding manually for a few values
	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	original := []int16{0, 1, -1, 32767, -32768, 12345, -6789}
	buf := SamplesToBytes(original)

	// Decode back
	recovered := make([]int16, len(buf)/2)
	for i := range recovered {
		recovered[i] = int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8)
	}

	for i, v := range original {
		if recovered[i] != v {
			t.Errorf("Round-trip sample[%d]: got %d, want %d", i, recovered[i], v)
		}
	}
}

// --- Pipeline unit tests (non-I/O) ---

func TestNewPipeline(t *testing.T) {
	p := NewPipeline("files", DefaultCodec, nil)
	if p == nil {
		t.Fatal("NewPipeline returned nil")
	}
	if p.OutputDir() != "files" {
		t.Errorf("OutputDir = %q, want files", p.OutputDir())
	}
	if p.persister == nil {
		t.Error("nil persister should default to WAV")
	}
}

func TestPipelineQueueSize(t *testing.T) {
	p := NewPipeline("", DefaultCodec, nil)
	if p.QueueSize() != 0 {
		t.Errorf("Initial QueueSize = %d, want 0", p.QueueSize())
	}
	if _, err := p.Submit(Job{Kind: JobOpen, Path: "a.wav"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if p.QueueSize() != 1 {
		t.Errorf("QueueSize = %d, want 1", p.QueueSize())
	}
}

func TestPipelineSubmitNonBlocking(t *testing.T) {
	p := NewPipeline("", DefaultCodec, nil)
	var last uint64
	for i := 0; i < cap(p.jobCh); i++ {
		gen, err := p.Submit(Job{Kind: JobOpen, Path: "a.wav"})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if gen <= last {
			t.Errorf("generation %d not above %d", gen, last)
		}
		last = gen
	}
	// Nobody is draining the queue; the next submit must fail, not block.
	if _, err := p.Submit(Job{Kind: JobOpen, Path: "a.wav"}); err != ErrQueueFull {
		t.Errorf("Submit on full queue = %v, want ErrQueueFull", err)
	}
}
