package abx

import (
	"context"
	"errors"
	"log"

	"github.com/satindergrewal/abxtest/internal/audio"
)

// ErrStopped is returned by coordinator calls after Run has returned.
var ErrStopped = errors.New("coordinator stopped")

// Player plays files for the listener. Play stops whatever is playing.
type Player interface {
	Play(ctx context.Context, path string) error
	Stop()
}

// Presenter receives everything the listener should see.
type Presenter interface {
	SourceLoaded(name string)
	ScoreUpdated(score Score, pValue float64)
	Message(msg string)
}

// Recorder is told about evaluated guesses. Optional.
type Recorder interface {
	ObserveGuess(correct bool, pValue float64)
	ResetSession()
}

// Outcome is the result of one evaluated guess.
type Outcome struct {
	Score   Score   `json:"score"`
	PValue  float64 `json:"p_value"`
	Correct bool    `json:"correct"`
}

// Status is a snapshot of the coordinator for display.
type Status struct {
	SessionID     string          `json:"session_id"`
	State         string          `json:"state"`
	Source        string          `json:"source"`
	Bitrate       int             `json:"bitrate"`
	Score         Score           `json:"score"`
	PValue        float64         `json:"p_value"`
	Significant   bool            `json:"significant"`
	Needed        uint            `json:"needed"` // correct answers that would reach Alpha at the current tries
	Alpha         float64         `json:"alpha"`
	Opening       bool            `json:"opening"`
	Converting    bool            `json:"converting"`
	Queued        int             `json:"queued"`
	ConvertedPath string          `json:"converted_path,omitempty"`
	MixedPath     string          `json:"mixed_path,omitempty"`
	Bitrates      []audio.Bitrate `json:"bitrates"`
}

// Coordinator owns a Session and is the only goroutine that touches it.
// Slow decode and encode work goes to the pipeline; results come back on
// the pipeline's result channel and only the most recent request of each
// kind is applied.
type Coordinator struct {
	session   *Session
	pipeline  *audio.Pipeline
	player    Player
	presenter Presenter
	recorder  Recorder
	alpha     float64

	cmdCh   chan func()
	stopped chan struct{}

	openGen    uint64 // latest open request, 0 when none pending
	convertGen uint64 // latest convert request, 0 when none pending
}

// NewCoordinator wires a session to its collaborators.
func NewCoordinator(session *Session, pipeline *audio.Pipeline, player Player, presenter Presenter, alpha float64) *Coordinator {
	return &Coordinator{
		session:   session,
		pipeline:  pipeline,
		player:    player,
		presenter: presenter,
		alpha:     alpha,
		cmdCh:     make(chan func()),
		stopped:   make(chan struct{}),
	}
}

// SetRecorder installs a guess recorder. Call before Run.
func (c *Coordinator) SetRecorder(r Recorder) {
	c.recorder = r
}

// Run serves commands and pipeline results until ctx is cancelled. Blocks.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.stopped)
	results := c.pipeline.Results()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.cmdCh:
			fn()
		case res, ok := <-results:
			if !ok {
				return
			}
			c.apply(res)
		}
	}
}

// do runs fn on the coordinator goroutine and waits for it.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case c.cmdCh <- func() { fn(); close(done) }:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open asks the pipeline to decode path. An empty path means the listener
// cancelled the file picker and nothing happens. The session switches to
// the new source once decoding finishes; any conversion still in flight
// is discarded.
func (c *Coordinator) Open(ctx context.Context, path string) error {
	var err error
	if doErr := c.do(ctx, func() {
		if path == "" {
			log.Println("Cancelled.")
			return
		}
		var gen uint64
		gen, err = c.pipeline.Submit(audio.Job{Kind: audio.JobOpen, Path: path})
		if err != nil {
			return
		}
		c.openGen = gen
		c.convertGen = 0
	}); doErr != nil {
		return doErr
	}
	return err
}

// Convert asks the pipeline to build a pair for the current source.
func (c *Coordinator) Convert(ctx context.Context, bitrate audio.Bitrate) error {
	var err error
	if doErr := c.do(ctx, func() {
		if !bitrate.Valid() {
			err = &audio.EncodeError{Op: "bitrate", Err: errors.New("unsupported bitrate " + bitrate.String())}
			return
		}
		src := c.session.Source()
		if c.session.State() == Idle || src == nil || c.openGen != 0 {
			err = &NotReadyError{Op: "convert", State: c.session.State()}
			return
		}
		var gen uint64
		gen, err = c.pipeline.Submit(audio.Job{Kind: audio.JobConvert, Source: src, Bitrate: bitrate})
		if err != nil {
			return
		}
		c.convertGen = gen
	}); doErr != nil {
		return doErr
	}
	return err
}

// Play resolves label for the current round and hands the file to the
// player. Player failures are logged only.
func (c *Coordinator) Play(ctx context.Context, label Label) error {
	var err error
	if doErr := c.do(ctx, func() {
		var path string
		path, err = c.session.ResolvePath(label)
		if err != nil {
			return
		}
		if perr := c.player.Play(ctx, path); perr != nil {
			log.Printf("Play %s: %v", label, perr)
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Guess evaluates the listener's answer and starts the next round.
func (c *Coordinator) Guess(ctx context.Context, g Guess) (Outcome, error) {
	var out Outcome
	var err error
	if doErr := c.do(ctx, func() {
		before := c.session.Score()
		var score Score
		var p float64
		score, p, err = c.session.Evaluate(g)
		if err != nil {
			return
		}
		out = Outcome{Score: score, PValue: p, Correct: score.Correct > before.Correct}
		c.player.Stop()
		c.presenter.ScoreUpdated(score, p)
		if c.recorder != nil {
			c.recorder.ObserveGuess(out.Correct, p)
		}
	}); doErr != nil {
		return Outcome{}, doErr
	}
	return out, err
}

// Status returns a snapshot for display.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, func() {
		s := c.session
		st = Status{
			SessionID:   s.ID(),
			State:       s.State().String(),
			Score:       s.Score(),
			PValue:      s.PValue(),
			Significant: s.Score().Tries > 0 && Significant(s.PValue(), c.alpha),
			Alpha:       c.alpha,
			Opening:     c.openGen != 0,
			Converting:  c.convertGen != 0,
			Queued:      c.pipeline.QueueSize(),
			Bitrates:    audio.Bitrates,
		}
		if n, ok := CriticalCorrect(s.Score().Tries, c.alpha); ok {
			st.Needed = n
		}
		if src := s.Source(); src != nil {
			st.Source = src.Name
		}
		if pair := s.Pair(); pair != nil {
			st.Bitrate = int(pair.Bitrate)
			st.ConvertedPath = pair.ConvertedPath
			st.MixedPath = pair.MixedPath
		}
	})
	return st, err
}

func (c *Coordinator) apply(res audio.Result) {
	switch res.Kind {
	case audio.JobOpen:
		if res.Gen != c.openGen {
			log.Printf("Discarding superseded open result (gen %d)", res.Gen)
			return
		}
		c.openGen = 0
		if res.Err != nil {
			c.presenter.Message("Open failed: " + res.Err.Error())
			return
		}
		c.player.Stop()
		c.session.Open(res.Source)
		if c.recorder != nil {
			c.recorder.ResetSession()
		}
		c.presenter.SourceLoaded(res.Source.Name)
		c.presenter.ScoreUpdated(c.session.Score(), c.session.PValue())

	case audio.JobConvert:
		if res.Gen != c.convertGen {
			log.Printf("Discarding superseded convert result (gen %d)", res.Gen)
			return
		}
		c.convertGen = 0
		if res.Err != nil {
			c.presenter.Message("Convert failed: " + res.Err.Error())
			return
		}
		if _, err := c.session.Activate(res.Pair); err != nil {
			c.presenter.Message("Convert failed: " + err.Error())
			return
		}
		c.presenter.Message("Finished. Converted at " + res.Pair.Bitrate.String() + ".")
	}
}
