package stream

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/satindergrewal/abxtest/internal/audio"
)

// cacheEntries bounds the decoded-file cache. One test needs two files.
const cacheEntries = 4

// LoadFunc decodes a file into 48 kHz stereo int16 PCM.
type LoadFunc func(ctx context.Context, path string) ([]int16, error)

// LoadPlayback decodes any supported file into the player's layout.
func LoadPlayback(ctx context.Context, path string) ([]int16, error) {
	buf, err := audio.Decode(ctx, path)
	if err != nil {
		return nil, err
	}
	return audio.ToPlayback(buf)
}

type request struct {
	gen   uint64
	track audio.TrackInfo
}

type decodedTrack struct {
	gen     uint64
	info    audio.TrackInfo
	samples []int16
}

type cached struct {
	key     string
	samples []int16
}

// Player plays one file at a time at real-time rate into Frames().
// Play and Stop supersede whatever is playing or loading; only the most
// recent request is ever heard.
type Player struct {
	load    LoadFunc
	reqCh   chan request
	frameCh chan []int16
	gen     atomic.Uint64
	flush   func()

	cacheMu sync.Mutex
	cache   []cached

	mu            sync.RWMutex
	currentTrack  audio.TrackInfo
	trackPosition time.Duration
	trackDuration time.Duration
}

// NewPlayer creates a player decoding files with load.
func NewPlayer(load LoadFunc) *Player {
	if load == nil {
		load = LoadPlayback
	}
	return &Player{
		load:    load,
		reqCh:   make(chan request, 1),
		frameCh: make(chan []int16, 5),
	}
}

// SetFlushFunc installs a hook run whenever playback is interrupted,
// typically Broadcaster.Flush. Call before Run.
func (p *Player) SetFlushFunc(fn func()) {
	p.flush = fn
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Player) Frames() <-chan []int16 {
	return p.frameCh
}

// Play stops the current item and starts path.
func (p *Player) Play(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("play %s: %w", path, err)
	}
	gen := p.interrupt()
	req := request{gen: gen, track: audio.TrackInfo{
		ID:   uuid.NewString(),
		Path: path,
		Name: filepath.Base(path),
	}}

	// Replace any request the decoder has not picked up yet.
	select {
	case <-p.reqCh:
	default:
	}
	select {
	case p.reqCh <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop silences the player.
func (p *Player) Stop() {
	p.interrupt()
}

func (p *Player) interrupt() uint64 {
	gen := p.gen.Add(1)
drain:
	for {
		select {
		case _, ok := <-p.frameCh:
			if !ok {
				break drain
			}
		default:
			break drain
		}
	}
	if p.flush != nil {
		p.flush()
	}
	return gen
}

// Status returns current playback info.
func (p *Player) Status() (track audio.TrackInfo, position, duration time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentTrack, p.trackPosition, p.trackDuration
}

// Run starts the player. Blocks until ctx is cancelled.
func (p *Player) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	// Background decoder: converts file paths to decoded PCM
	decodedCh := make(chan *decodedTrack, 1)
	go func() {
		defer close(decodedCh)
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-p.reqCh:
				if req.gen != p.gen.Load() {
					continue
				}
				samples, err := p.samples(ctx, req.track.Path)
				if err != nil {
					log.Printf("Decode failed %s: %v", req.track.Path, err)
					continue
				}
				select {
				case decodedCh <- &decodedTrack{gen: req.gen, info: req.track, samples: samples}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case dt, ok := <-decodedCh:
			if !ok {
				return
			}
			if dt.gen != p.gen.Load() {
				continue
			}
			p.playTrack(ctx, ticker, dt)
		}
	}
}

// playTrack plays dt until it ends, is superseded, or ctx is cancelled.
// The first and last frames are faded so switching items never clicks.
func (p *Player) playTrack(ctx context.Context, ticker *time.Ticker, dt *decodedTrack) {
	samples := dt.samples
	totalFrames := len(samples) / audio.FrameSamples
	p.setTrack(dt.info, totalFrames)
	defer p.setTrack(audio.TrackInfo{}, 0)
	log.Printf("Now playing: %s (frames: %d)", dt.info.Name, totalFrames)

	for i := 0; i < totalFrames; i++ {
		frame := samples[i*audio.FrameSamples : (i+1)*audio.FrameSamples]
		superseded := dt.gen != p.gen.Load()
		switch {
		case superseded:
			frame = audio.FadeOut(frame, audio.Channels)
		case i == 0:
			frame = audio.FadeIn(frame, audio.Channels)
		case i == totalFrames-1:
			frame = audio.FadeOut(frame, audio.Channels)
		}
		if !p.sendFrame(ctx, ticker, frame) || superseded {
			return
		}
		p.updatePosition(i)
	}
}

// sendFrame waits for the ticker then sends a frame. Returns false on cancel.
func (p *Player) sendFrame(ctx context.Context, ticker *time.Ticker, frame []int16) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C:
	}

	select {
	case p.frameCh <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// samples returns decoded PCM for path, reusing earlier decodes of the
// same unchanged file.
func (p *Player) samples(ctx context.Context, path string) ([]int16, error) {
	key := path
	if fi, err := os.Stat(path); err == nil {
		key = fmt.Sprintf("%s|%d|%d", path, fi.Size(), fi.ModTime().UnixNano())
	}

	p.cacheMu.Lock()
	for _, c := range p.cache {
		if c.key == key {
			p.cacheMu.Unlock()
			return c.samples, nil
		}
	}
	p.cacheMu.Unlock()

	samples, err := p.load(ctx, path)
	if err != nil {
		return nil, err
	}

	p.cacheMu.Lock()
	p.cache = append(p.cache, cached{key: key, samples: samples})
	if len(p.cache) > cacheEntries {
		p.cache = p.cache[len(p.cache)-cacheEntries:]
	}
	p.cacheMu.Unlock()
	return samples, nil
}

func (p *Player) setTrack(info audio.TrackInfo, totalFrames int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentTrack = info
	p.trackPosition = 0
	p.trackDuration = time.Duration(totalFrames) * audio.FrameDuration
}

func (p *Player) updatePosition(frameIdx int) {
	p.mu.Lock()
	p.trackPosition = time.Duration(frameIdx) * audio.FrameDuration
	p.mu.Unlock()
}
