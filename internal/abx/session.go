// Package abx runs a blind ABX listening test over an original signal
// and its lossy copy, and scores it with an exact binomial test.
package abx

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/satindergrewal/abxtest/internal/audio"
)

// ErrNotReady is matched by every out-of-sequence session call.
var ErrNotReady = errors.New("session not ready")

// NotReadyError names the operation that was called too early.
type NotReadyError struct {
	Op    string
	State State
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s: session is %s", e.Op, e.State)
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// State is the session lifecycle position.
type State int

const (
	Idle   State = iota // nothing opened
	Ready               // source decoded, no converted pair yet
	Active              // pair available, rounds running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Active:
		return "active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Score is the running tally for the current source.
type Score struct {
	Tries   uint `json:"tries"`
	Correct uint `json:"correct"`
}

func (s Score) String() string {
	return fmt.Sprintf("%d/%d", s.Correct, s.Tries)
}

// Session holds one listener's test. It is not safe for concurrent use;
// a single goroutine (see Coordinator) owns it.
type Session struct {
	id  string
	rng *rand.Rand

	state   State
	source  *audio.Source
	pair    *audio.TransformedPair
	round   RoundAssignment
	started bool
	score   Score
	pValue  float64
}

// NewSession creates an idle session drawing rounds from rng.
// Pass a seeded generator to make round sequences reproducible.
func NewSession(rng *rand.Rand) *Session {
	return &Session{
		id:     uuid.NewString(),
		rng:    rng,
		pValue: 1,
	}
}

// NewSeededSession is NewSession with a PCG generator seeded from seed.
func NewSeededSession(seed uint64) *Session {
	return NewSession(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

func (s *Session) ID() string { return s.id }
func (s *Session) State() State { return s.state }
func (s *Session) Score() Score { return s.score }
func (s *Session) PValue() float64 { return s.pValue }
func (s *Session) Source() *audio.Source { return s.source }
func (s *Session) Pair() *audio.TransformedPair { return s.pair }

// Open installs a new source from any state. The previous pair, round
// and score are dropped.
func (s *Session) Open(src *audio.Source) State {
	s.source = src
	s.pair = nil
	s.round = RoundAssignment{}
	s.started = false
	s.score = Score{}
	s.pValue = 1
	s.state = Ready
	return s.state
}

// Activate installs a finished pair and starts the first round. A new
// pair for the same source (another bitrate) keeps the score.
func (s *Session) Activate(pair *audio.TransformedPair) (RoundAssignment, error) {
	if s.state == Idle {
		return RoundAssignment{}, &NotReadyError{Op: "activate", State: s.state}
	}
	if pair == nil || pair.Original == nil || pair.Converted == nil {
		return RoundAssignment{}, errors.New("activate: incomplete pair")
	}
	s.pair = pair
	s.state = Active
	return s.StartRound()
}

// StartRound draws a fresh assignment, replacing the current one.
func (s *Session) StartRound() (RoundAssignment, error) {
	if s.state != Active {
		return RoundAssignment{}, &NotReadyError{Op: "start round", State: s.state}
	}
	s.round = DrawRound(s.rng)
	s.started = true
	return s.round, nil
}

// Round returns the current assignment.
func (s *Session) Round() (RoundAssignment, error) {
	if s.state != Active || !s.started {
		return RoundAssignment{}, &NotReadyError{Op: "round", State: s.state}
	}
	return s.round, nil
}

// Resolve returns which variant label plays this round. Repeated calls
// within a round agree.
func (s *Session) Resolve(l Label) (Variant, error) {
	if !l.Valid() {
		return 0, fmt.Errorf("resolve: unknown label %s", l)
	}
	r, err := s.Round()
	if err != nil {
		return 0, err
	}
	return r.Resolve(l), nil
}

// ResolvePath returns the file to play for label this round.
func (s *Session) ResolvePath(l Label) (string, error) {
	v, err := s.Resolve(l)
	if err != nil {
		return "", err
	}
	if v == Original {
		return s.pair.OriginalPath, nil
	}
	return s.pair.ConvertedPath, nil
}

// Evaluate scores guess against the current round, recomputes the
// p-value and starts the next round. On error nothing changes.
func (s *Session) Evaluate(g Guess) (Score, float64, error) {
	r, err := s.Round()
	if err != nil {
		return s.score, s.pValue, &NotReadyError{Op: "evaluate", State: s.state}
	}
	if !g.Valid() {
		return s.score, s.pValue, fmt.Errorf("evaluate: unknown guess %d", int(g))
	}

	next := s.score
	next.Tries++
	if r.Correct(g) {
		next.Correct++
	}
	p, err := BinomialTestGreater(next.Correct, next.Tries)
	if err != nil {
		return s.score, s.pValue, err
	}

	s.score = next
	s.pValue = p
	if _, err := s.StartRound(); err != nil {
		return s.score, s.pValue, err
	}
	return s.score, s.pValue, nil
}
