package abx

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/abxtest/internal/audio"
)

type fakePlayer struct {
	mu     sync.Mutex
	played []string
	stops  int
}

func (p *fakePlayer) Play(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, path)
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayer) snapshot() ([]string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...), p.stops
}

type fakePresenter struct {
	mu       sync.Mutex
	source   string
	score    Score
	pValue   float64
	messages []string
}

func (p *fakePresenter) SourceLoaded(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = name
}

func (p *fakePresenter) ScoreUpdated(score Score, pValue float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.score, p.pValue = score, pValue
}

func (p *fakePresenter) Message(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
}

func (p *fakePresenter) hasMessage(prefix string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.messages {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

type fakeRecorder struct {
	mu      sync.Mutex
	guesses int
	resets  int
}

func (r *fakeRecorder) ObserveGuess(correct bool, p float64) {
	r.mu.Lock()
	r.guesses++
	r.mu.Unlock()
}

func (r *fakeRecorder) ResetSession() {
	r.mu.Lock()
	r.resets++
	r.mu.Unlock()
}

// writeTone writes a short mono 440 Hz tone and returns its path.
func writeTone(t *testing.T, dir, name string) string {
	t.Helper()
	const rate = 48000
	samples := make([]float32, rate/2)
	for i := range samples {
		samples[i] = float32(0.4 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	buf, err := audio.NewBuffer(samples, rate, 1, 16)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, audio.WriteWAV(path, buf))
	return path
}

type harness struct {
	coord     *Coordinator
	session   *Session
	player    *fakePlayer
	presenter *fakePresenter
	recorder  *fakeRecorder
	dir       string
	cancel    context.CancelFunc
	done      chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return startHarness(t, NewSeededSession(11), true)
}

// startHarness runs a coordinator around session. With runPipeline false,
// submitted jobs stay queued forever.
func startHarness(t *testing.T, session *Session, runPipeline bool) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		session:   session,
		player:    &fakePlayer{},
		presenter: &fakePresenter{},
		recorder:  &fakeRecorder{},
		dir:       dir,
		done:      make(chan struct{}),
	}
	pipeline := audio.NewPipeline(filepath.Join(dir, "out"), audio.DefaultCodec, nil)
	h.coord = NewCoordinator(h.session, pipeline, h.player, h.presenter, 0.05)
	h.coord.SetRecorder(h.recorder)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	if runPipeline {
		go pipeline.Run(ctx)
	}
	go func() {
		h.coord.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

func (h *harness) status(t *testing.T) Status {
	t.Helper()
	st, err := h.coord.Status(context.Background())
	require.NoError(t, err)
	return st
}

func (h *harness) waitFor(t *testing.T, cond func(Status) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(h.status(t))
	}, 30*time.Second, 10*time.Millisecond)
}

func TestCoordinatorEmptyOpenIsNoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.coord.Open(context.Background(), ""))
	st := h.status(t)
	assert.Equal(t, "idle", st.State)
	assert.False(t, st.Opening)
	assert.Equal(t, 0, h.recorder.resets)
}

func TestCoordinatorConvertBeforeOpen(t *testing.T) {
	h := newHarness(t)
	err := h.coord.Convert(context.Background(), 165)
	assert.ErrorIs(t, err, ErrNotReady)

	err = h.coord.Convert(context.Background(), 128)
	assert.ErrorIs(t, err, audio.ErrEncode)

	err = h.coord.Play(context.Background(), LabelA)
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = h.coord.Guess(context.Background(), AIsX)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestCoordinatorOpenLoadsSource(t *testing.T) {
	h := newHarness(t)
	path := writeTone(t, h.dir, "tone.wav")

	require.NoError(t, h.coord.Open(context.Background(), path))
	h.waitFor(t, func(st Status) bool { return st.State == "ready" && !st.Opening })

	st := h.status(t)
	assert.Equal(t, "tone.wav", st.Source)
	h.presenter.mu.Lock()
	assert.Equal(t, "tone.wav", h.presenter.source)
	h.presenter.mu.Unlock()
	h.recorder.mu.Lock()
	assert.Equal(t, 1, h.recorder.resets)
	h.recorder.mu.Unlock()
	assert.FileExists(t, filepath.Join(h.dir, "out", "tone.wav"))
}

func TestCoordinatorLatestOpenWins(t *testing.T) {
	h := newHarness(t)
	first := writeTone(t, h.dir, "first.wav")
	second := writeTone(t, h.dir, "second.wav")

	require.NoError(t, h.coord.Open(context.Background(), first))
	require.NoError(t, h.coord.Open(context.Background(), second))
	h.waitFor(t, func(st Status) bool { return !st.Opening })

	st := h.status(t)
	assert.Equal(t, "second.wav", st.Source)
	assert.Equal(t, "ready", st.State)
}

func TestCoordinatorOpenFailureReported(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.coord.Open(context.Background(), filepath.Join(h.dir, "missing.wav")))
	h.waitFor(t, func(st Status) bool { return !st.Opening })

	assert.True(t, h.presenter.hasMessage("Open failed"))
	assert.Equal(t, "idle", h.status(t).State)
}

func TestCoordinatorConvertRefusedWhileOpenPending(t *testing.T) {
	session := NewSeededSession(11)
	session.Open(&audio.Source{Path: "a.wav", Name: "a.wav", Buffer: testBuffer(t)})
	h := startHarness(t, session, false)

	require.NoError(t, h.coord.Open(context.Background(), writeTone(t, h.dir, "b.wav")))
	st := h.status(t)
	assert.True(t, st.Opening)
	assert.Equal(t, "ready", st.State)

	err := h.coord.Convert(context.Background(), 165)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestCoordinatorConvertPlayGuess(t *testing.T) {
	h := newHarness(t)
	path := writeTone(t, h.dir, "tone.wav")

	require.NoError(t, h.coord.Open(context.Background(), path))
	h.waitFor(t, func(st Status) bool { return st.State == "ready" && !st.Opening })

	require.NoError(t, h.coord.Convert(context.Background(), 165))
	h.waitFor(t, func(st Status) bool { return st.State == "active" && !st.Converting })

	st := h.status(t)
	assert.Equal(t, 165, st.Bitrate)
	assert.FileExists(t, st.ConvertedPath)
	assert.FileExists(t, st.MixedPath)
	assert.True(t, h.presenter.hasMessage("Finished. Converted at 165k."))

	for _, l := range []Label{LabelA, LabelB, LabelX, LabelY} {
		require.NoError(t, h.coord.Play(context.Background(), l))
	}
	played, _ := h.player.snapshot()
	require.Len(t, played, 4)
	assert.ElementsMatch(t, []string{path, st.ConvertedPath}, played[:2])
	assert.ElementsMatch(t, []string{path, st.ConvertedPath}, played[2:])

	out, err := h.coord.Guess(context.Background(), AIsX)
	require.NoError(t, err)
	assert.Equal(t, uint(1), out.Score.Tries)
	want := 1.0
	if out.Correct {
		want = 0.5
	}
	assert.Equal(t, want, out.PValue)

	_, stops := h.player.snapshot()
	assert.GreaterOrEqual(t, stops, 2) // one on open, one on guess
	h.recorder.mu.Lock()
	assert.Equal(t, 1, h.recorder.guesses)
	h.recorder.mu.Unlock()
}

func TestCoordinatorStopped(t *testing.T) {
	h := newHarness(t)
	h.stop()
	err := h.coord.Open(context.Background(), "x.wav")
	assert.ErrorIs(t, err, ErrStopped)
}
