package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// Persister writes a buffer to a target path.
type Persister interface {
	Persist(path string, buf *Buffer) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(path string, buf *Buffer) error

func (f PersisterFunc) Persist(path string, buf *Buffer) error { return f(path, buf) }

// WAVPersister stores buffers as PCM WAV files.
var WAVPersister Persister = PersisterFunc(WriteWAV)

// WriteWAV writes buf as a PCM WAV file, creating parent directories.
func WriteWAV(path string, buf *Buffer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bitDepth := buf.BitDepth
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		bitDepth = BitDepth
	}

	enc := wav.NewEncoder(f, buf.SampleRate, bitDepth, buf.Channels, 1)
	pcm := &goaudio.Float32Buffer{
		Format: &goaudio.Format{
			SampleRate:  buf.SampleRate,
			NumChannels: buf.Channels,
		},
		Data:           buf.Samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(pcm); err != nil {
		return fmt.Errorf("write wav %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav %s: %w", path, err)
	}
	return nil
}

// Artifacts names the files one conversion produces.
type Artifacts struct {
	Converted string // Ogg Opus re-encode
	Mixed     string // residual, WAV
}

// ArtifactPaths derives artifact names from the source file name:
// <dir>/<stem>_<kbps>.opus and <dir>/<stem>_mix.wav.
func ArtifactPaths(dir, sourcePath string, bitrate Bitrate) Artifacts {
	stem := Stem(sourcePath)
	return Artifacts{
		Converted: filepath.Join(dir, fmt.Sprintf("%s_%d.opus", stem, int(bitrate))),
		Mixed:     filepath.Join(dir, stem+"_mix.wav"),
	}
}

// Stem returns the file name without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CopySource copies the source file into dir and returns the new path.
// A source already inside dir is left where it is.
func CopySource(dir, path string) (string, error) {
	dst := filepath.Join(dir, filepath.Base(path))
	if absSrc, err := filepath.Abs(path); err == nil {
		if absDst, err := filepath.Abs(dst); err == nil && absSrc == absDst {
			return dst, nil
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy %s: %w", path, err)
	}
	return dst, out.Close()
}
