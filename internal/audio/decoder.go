package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cwbudde/wav"
)

// Decode reads an audio file into a Buffer. WAV and Ogg Opus are decoded
// in-process; every other container goes through FFmpeg.
func Decode(ctx context.Context, path string) (*Buffer, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if fi.IsDir() {
		return nil, &DecodeError{Path: path, Err: errors.New("is a directory")}
	}
	if fi.Size() == 0 {
		return nil, &DecodeError{Path: path, Err: errors.New("empty file")}
	}

	var buf *Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		buf, err = decodeWAV(path)
	case ".opus", ".ogg", ".oga":
		buf, err = DecodeOggOpus(path)
		if err != nil {
			// Ogg can carry Vorbis or FLAC too.
			log.Printf("Ogg Opus decode failed for %s, trying ffmpeg: %v", path, err)
			buf, err = DecodeFile(ctx, path)
		}
	default:
		buf, err = DecodeFile(ctx, path)
	}
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DecodeError{Path: path, Err: err}
	}
	if buf.Frames() == 0 {
		return nil, &DecodeError{Path: path, Err: errors.New("no audio frames")}
	}
	return buf, nil
}

func decodeWAV(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav pcm: %w", err)
	}
	if pcm == nil || pcm.Format == nil || pcm.Format.NumChannels < 1 {
		return nil, fmt.Errorf("invalid wav buffer")
	}
	return NewBuffer(pcm.Data, pcm.Format.SampleRate, pcm.Format.NumChannels, pcm.SourceBitDepth)
}

// DecodeFile runs FFmpeg to decode an audio file to raw PCM int16 samples.
// Returns interleaved stereo samples at 48kHz.
func DecodeFile(ctx context.Context, path string) (*Buffer, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// Keep whole stereo int16 frames only
	if rem := len(out) % (Channels * 2); rem != 0 {
		out = out[:len(out)-rem]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return NewBuffer(FromInt16(samples), SampleRate, Channels, BitDepth)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
