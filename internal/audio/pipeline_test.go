package audio

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

type stageRecorder struct {
	mu     sync.Mutex
	stages []string
}

func (r *stageRecorder) ObserveStage(stage string, d time.Duration, err error) {
	r.mu.Lock()
	r.stages = append(r.stages, stage)
	r.mu.Unlock()
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "tone.wav")
	in := sine(44100, 2, 0.25, 440, 0.5)
	if err := WriteWAV(path, in); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	out, err := Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.SampleRate != 44100 || out.Channels != 2 || out.Frames() != in.Frames() {
		t.Fatalf("got %d Hz/%dch/%d frames", out.SampleRate, out.Channels, out.Frames())
	}
	for i := range in.Samples {
		if d := math.Abs(float64(out.Samples[i] - in.Samples[i])); d > 1.0/16384 {
			t.Fatalf("sample %d = %v, want %v", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.wav")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("not a riff file at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{empty, garbage, dir, filepath.Join(dir, "missing.wav")} {
		_, err := Decode(context.Background(), path)
		if !errors.Is(err, ErrDecode) {
			t.Errorf("Decode(%s) err = %v, want ErrDecode", filepath.Base(path), err)
		}
		var de *DecodeError
		if errors.As(err, &de) && de.Path != path {
			t.Errorf("DecodeError.Path = %q, want %q", de.Path, path)
		}
	}
}

func TestEncodeLossyRejectsBitrate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x_128.opus")
	_, err := EncodeLossy(context.Background(), sine(48000, 1, 0.1, 440, 0.5), 128, out)
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("err = %v, want ErrEncode", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no file should be written for a rejected bitrate")
	}

	surround := &Buffer{Samples: make([]float32, 6*480), SampleRate: 48000, Channels: 6}
	_, err = EncodeLossy(context.Background(), surround, 165, out)
	if !errors.Is(err, ErrEncode) {
		t.Errorf("6 channels err = %v, want ErrEncode", err)
	}
}

func TestPipelineOpenConvert(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tone.wav")
	if err := WriteWAV(src, sine(48000, 1, 5, 200, 0.5)); err != nil {
		t.Fatal(err)
	}

	outDir := filepath.Join(dir, "files")
	p := NewPipeline(outDir, DefaultCodec, nil)
	rec := &stageRecorder{}
	p.SetObserver(rec)

	source, err := p.Open(context.Background(), src)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if source.Name != "tone.wav" || source.CopyPath != filepath.Join(outDir, "tone.wav") {
		t.Errorf("source = %+v", source)
	}

	pair, err := p.Convert(context.Background(), source, 165)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for name, b := range map[string]*Buffer{
		"original": pair.Original, "converted": pair.Converted,
		"inverted": pair.Inverted, "mixed": pair.Mixed,
	} {
		if b == nil {
			t.Fatalf("%s buffer missing", name)
		}
		if b.Frames() != source.Buffer.Frames() || !b.SameLayout(source.Buffer) {
			t.Errorf("%s: %d frames %d Hz/%dch, want %d frames", name, b.Frames(), b.SampleRate, b.Channels, source.Buffer.Frames())
		}
	}
	if pair.OriginalPath != src || pair.Bitrate != 165 {
		t.Errorf("pair = %s %v", pair.OriginalPath, pair.Bitrate)
	}
	if pair.ConvertedPath != filepath.Join(outDir, "tone_165.opus") {
		t.Errorf("ConvertedPath = %q", pair.ConvertedPath)
	}
	if fi, err := os.Stat(pair.ConvertedPath); err != nil || fi.Size() == 0 {
		t.Errorf("converted file missing or empty: %v", err)
	}
	if _, err := os.Stat(pair.MixedPath); err != nil {
		t.Errorf("residual file missing: %v", err)
	}

	for i := range pair.Converted.Samples {
		if pair.Inverted.Samples[i] != -pair.Converted.Samples[i] {
			t.Fatalf("inverted sample %d is not the negated converted sample", i)
		}
	}
	// A time-aligned lossy copy leaves a residual well below the signal.
	if r, o := rms(pair.Mixed.Samples), rms(pair.Original.Samples); r >= o/2 {
		t.Errorf("residual rms %.4f not below half of original rms %.4f", r, o)
	}

	decoded, err := Decode(context.Background(), pair.ConvertedPath)
	if err != nil {
		t.Fatalf("Decode opus: %v", err)
	}
	if decoded.SampleRate != 48000 || decoded.Channels != 1 {
		t.Errorf("decoded opus %d Hz/%dch", decoded.SampleRate, decoded.Channels)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []string{"decode", "encode", "invert", "overlay", "persist"}
	if len(rec.stages) != len(want) {
		t.Fatalf("stages = %v, want %v", rec.stages, want)
	}
	for i := range want {
		if rec.stages[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, rec.stages[i], want[i])
		}
	}
}

func TestPipelineConvert44k(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cd.wav")
	// 2.3 s does not fill a whole number of 20 ms Opus frames.
	if err := WriteWAV(src, sine(44100, 2, 2.3, 200, 0.5)); err != nil {
		t.Fatal(err)
	}

	p := NewPipeline(filepath.Join(dir, "files"), DefaultCodec, nil)
	source, err := p.Open(context.Background(), src)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pair, err := p.Convert(context.Background(), source, 165)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if pair.Converted.SampleRate != 44100 || pair.Converted.Frames() != source.Buffer.Frames() {
		t.Fatalf("converted %d Hz/%d frames, want 44100 Hz/%d frames",
			pair.Converted.SampleRate, pair.Converted.Frames(), source.Buffer.Frames())
	}
	if r, o := rms(pair.Mixed.Samples), rms(pair.Original.Samples); r >= o/2 {
		t.Errorf("residual rms %.4f not below half of original rms %.4f", r, o)
	}

	// The lossy file plays for exactly as long as the original.
	original, err := ToPlayback(source.Buffer)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(context.Background(), pair.ConvertedPath)
	if err != nil {
		t.Fatalf("Decode opus: %v", err)
	}
	converted, err := ToPlayback(decoded)
	if err != nil {
		t.Fatal(err)
	}
	if len(converted) != len(original) {
		t.Errorf("converted plays %d samples, original %d", len(converted), len(original))
	}
}

func TestDecodeOggOpusTrimsPadding(t *testing.T) {
	for _, frames := range []int{960 * 50, 960*50 + 123, 1} {
		in := &Buffer{Samples: make([]float32, frames), SampleRate: 48000, Channels: 1, BitDepth: 16}
		path := filepath.Join(t.TempDir(), "pad_100.opus")
		if _, err := EncodeLossy(context.Background(), in, 100, path); err != nil {
			t.Fatalf("EncodeLossy(%d frames): %v", frames, err)
		}
		out, err := DecodeOggOpus(path)
		if err != nil {
			t.Fatalf("DecodeOggOpus(%d frames): %v", frames, err)
		}
		if out.Frames() != frames {
			t.Errorf("decoded %d frames, want %d", out.Frames(), frames)
		}
	}
}

func TestPipelineRunDeliversResults(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.wav")
	if err := WriteWAV(src, sine(48000, 2, 0.1, 440, 0.3)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPipeline("", DefaultCodec, nil)
	go p.Run(ctx)

	openGen, err := p.Submit(Job{Kind: JobOpen, Path: src})
	if err != nil {
		t.Fatal(err)
	}
	badGen, err := p.Submit(Job{Kind: JobConvert, Bitrate: 165})
	if err != nil {
		t.Fatal(err)
	}

	res := <-p.Results()
	if res.Gen != openGen || res.Kind != JobOpen || res.Err != nil || res.Source == nil {
		t.Fatalf("open result = %+v", res)
	}
	if res.Source.CopyPath != "" {
		t.Errorf("no copy expected without an output dir, got %q", res.Source.CopyPath)
	}
	res = <-p.Results()
	if res.Gen != badGen || res.Err == nil {
		t.Fatalf("convert without source = %+v, want error", res)
	}

	cancel()
	for range p.Results() {
	}
}
