package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

const (
	// opusRate is the rate every lossy encode runs at; Opus granule
	// positions are always counted at 48 kHz.
	opusRate = 48000

	// opusLookahead is the libopus encoder delay at 48 kHz for the audio
	// application: 2.5 ms overlap plus 4 ms delay compensation.
	opusLookahead = 312

	// oggPreSkip is the pre-skip pion's oggwriter puts in the OpusHead.
	// Input is front-padded so that decoders honouring it land exactly on
	// the first source sample.
	oggPreSkip = 3840

	maxPacketBytes = 4000
	maxFrameSize   = 5760 // 120 ms at 48 kHz, the largest Opus frame
	opusPayload    = 111
)

// Codec re-encodes buffers through Opus.
type Codec struct {
	Complexity int // libopus complexity 0-10
}

// DefaultCodec uses the highest encoder complexity.
var DefaultCodec = Codec{Complexity: 10}

// EncodeLossy encodes buf at bitrate with the default codec.
func EncodeLossy(ctx context.Context, buf *Buffer, bitrate Bitrate, outPath string) (*Buffer, error) {
	return DefaultCodec.EncodeLossy(ctx, buf, bitrate, outPath)
}

// EncodeLossy encodes buf through Opus at bitrate, writes the Ogg Opus
// stream to outPath and decodes that file back to PCM. The returned
// buffer has the rate, channel count and frame count of buf, so it can
// be overlaid on it directly.
func (c Codec) EncodeLossy(ctx context.Context, buf *Buffer, bitrate Bitrate, outPath string) (*Buffer, error) {
	if !bitrate.Valid() {
		return nil, &EncodeError{Op: "bitrate", Err: fmt.Errorf("unsupported bitrate %d kbit/s", int(bitrate))}
	}
	if buf.Channels < 1 || buf.Channels > 2 {
		return nil, &EncodeError{Op: "channels", Err: fmt.Errorf("opus supports mono or stereo, got %d channels", buf.Channels)}
	}

	src, err := Resample(buf, opusRate)
	if err != nil {
		return nil, &EncodeError{Op: "resample", Err: err}
	}

	if err := c.writeOggOpus(ctx, src, bitrate, buf.SampleRate, outPath); err != nil {
		os.Remove(outPath)
		return nil, err
	}

	decoded, err := DecodeOggOpus(outPath)
	if err != nil {
		return nil, &EncodeError{Op: "decode back", Err: err}
	}
	decoded = fitFrames(decoded, src.Frames())

	out, err := Resample(decoded, buf.SampleRate)
	if err != nil {
		return nil, &EncodeError{Op: "resample back", Err: err}
	}
	out = fitFrames(out, buf.Frames())
	out.BitDepth = buf.BitDepth
	return out, nil
}

func (c Codec) writeOggOpus(ctx context.Context, src *Buffer, bitrate Bitrate, inputRate int, outPath string) error {
	ch := src.Channels

	enc, err := opus.NewEncoder(opusRate, ch, opus.AppAudio)
	if err != nil {
		return &EncodeError{Op: "new encoder", Err: err}
	}
	if err := enc.SetBitrate(bitrate.BitsPerSecond()); err != nil {
		return &EncodeError{Op: "set bitrate", Err: err}
	}
	if err := enc.SetComplexity(c.Complexity); err != nil {
		return &EncodeError{Op: "set complexity", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return &EncodeError{Op: "create dir", Err: err}
	}
	w, err := oggwriter.New(outPath, uint32(inputRate), uint16(ch))
	if err != nil {
		return &EncodeError{Op: "create ogg", Err: err}
	}

	// Front pad so pre-skip minus encoder delay is silence, back pad so the
	// encoder flushes its lookahead, then round up to whole frames.
	lead := (oggPreSkip - opusLookahead) * ch
	total := lead + len(src.Samples) + opusLookahead*ch
	if rem := total % (FrameSize * ch); rem != 0 {
		total += FrameSize*ch - rem
	}
	pcm := make([]float32, total)
	copy(pcm[lead:], src.Samples)

	// pion's oggwriter starts the granule position at 1 and advances it
	// by each packet's timestamp delta. The last delta is chosen so the
	// final page carries the end-trim position and decoders drop the
	// frame padding.
	endGranule := uint32(oggPreSkip + src.Frames())
	granule := uint32(1)

	packet := make([]byte, maxPacketBytes)
	step := FrameSize * ch
	var seq uint16
	var ts uint32
	for off := 0; off < len(pcm); off += step {
		if off > 0 {
			adv := uint32(FrameSize)
			if off+step == len(pcm) {
				adv = endGranule - granule
			}
			ts += adv
			granule += adv
		}
		if err := ctx.Err(); err != nil {
			w.Close()
			return &EncodeError{Op: "encode", Err: err}
		}
		n, err := enc.EncodeFloat32(pcm[off:off+step], packet)
		if err != nil {
			w.Close()
			return &EncodeError{Op: "encode frame", Err: err}
		}
		err = w.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayload,
				SequenceNumber: seq,
				Timestamp:      ts,
			},
			Payload: packet[:n],
		})
		if err != nil {
			w.Close()
			return &EncodeError{Op: "write page", Err: err}
		}
		seq++
	}

	if err := w.Close(); err != nil {
		return &EncodeError{Op: "close ogg", Err: err}
	}
	return nil
}

// DecodeOggOpus decodes an Ogg Opus file at 48 kHz. It expects one packet
// per page, which is how pion's oggwriter lays files out.
func DecodeOggOpus(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, header, err := oggreader.NewWith(f)
	if err != nil {
		return nil, fmt.Errorf("read ogg header: %w", err)
	}
	ch := int(header.Channels)
	if ch < 1 || ch > 2 {
		return nil, fmt.Errorf("unsupported opus channel count %d", ch)
	}

	dec, err := opus.NewDecoder(opusRate, ch)
	if err != nil {
		return nil, fmt.Errorf("new opus decoder: %w", err)
	}

	pcm := make([]float32, maxFrameSize*ch)
	var samples []float32
	var granule uint64
	for {
		payload, page, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ogg page: %w", err)
		}
		if len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}
		n, err := dec.DecodeFloat32(payload, pcm)
		if err != nil {
			return nil, fmt.Errorf("decode opus packet: %w", err)
		}
		samples = append(samples, pcm[:n*ch]...)
		granule = page.GranulePosition
	}

	// The last granule position counts the samples to keep, pre-skip
	// included; anything decoded past it is padding.
	if granule > uint64(header.PreSkip) && granule < uint64(len(samples)/ch) {
		samples = samples[:int(granule)*ch]
	}
	skip := int(header.PreSkip) * ch
	if skip > len(samples) {
		skip = len(samples)
	}
	samples = samples[skip:]
	if len(samples) == 0 {
		return nil, errors.New("no opus audio")
	}
	return NewBuffer(samples, opusRate, ch, BitDepth)
}
