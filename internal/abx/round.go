package abx

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Label is what the listener sees on a play button.
type Label int

const (
	LabelA Label = iota
	LabelB
	LabelX
	LabelY
)

func (l Label) String() string {
	switch l {
	case LabelA:
		return "A"
	case LabelB:
		return "B"
	case LabelX:
		return "X"
	case LabelY:
		return "Y"
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// Valid reports whether l is one of the four play buttons.
func (l Label) Valid() bool { return l >= LabelA && l <= LabelY }

// ParseLabel accepts a, b, x or y in either case.
func ParseLabel(s string) (Label, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return LabelA, nil
	case "B":
		return LabelB, nil
	case "X":
		return LabelX, nil
	case "Y":
		return LabelY, nil
	}
	return 0, fmt.Errorf("unknown label %q", s)
}

// Variant is one of the two physical signals under test.
type Variant int

const (
	Original Variant = iota
	Converted
)

func (v Variant) String() string {
	if v == Original {
		return "original"
	}
	return "converted"
}

// Guess is the listener's answer for a round.
type Guess int

const (
	AIsX Guess = iota // A is X, B is Y
	AIsY              // A is Y, B is X
)

func (g Guess) String() string {
	if g == AIsX {
		return "a_x"
	}
	return "a_y"
}

func (g Guess) Valid() bool { return g == AIsX || g == AIsY }

// ParseGuess accepts "a_x"/"ax"/"x" and "a_y"/"ay"/"y".
func ParseGuess(s string) (Guess, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a_x", "ax", "x", "a=x":
		return AIsX, nil
	case "a_y", "ay", "y", "a=y":
		return AIsY, nil
	}
	return 0, fmt.Errorf("unknown guess %q", s)
}

// RoundAssignment is the hidden mapping for one round. SlotAB picks which
// variant is A, SlotXY which variant is X; 0 means the original.
type RoundAssignment struct {
	SlotAB uint8
	SlotXY uint8
}

// DrawRound draws both slots independently and uniformly from rng.
func DrawRound(rng *rand.Rand) RoundAssignment {
	return RoundAssignment{
		SlotAB: uint8(rng.IntN(2)),
		SlotXY: uint8(rng.IntN(2)),
	}
}

// Resolve maps a valid label to the variant it plays this round.
func (r RoundAssignment) Resolve(l Label) Variant {
	var slot uint8
	switch l {
	case LabelA:
		slot = r.SlotAB
	case LabelB:
		slot = 1 - r.SlotAB
	case LabelX:
		slot = r.SlotXY
	case LabelY:
		slot = 1 - r.SlotXY
	}
	if slot == 0 {
		return Original
	}
	return Converted
}

// Correct reports whether g matches the assignment: A is X exactly when
// both slots point at the same variant.
func (r RoundAssignment) Correct(g Guess) bool {
	same := r.SlotAB == r.SlotXY
	switch g {
	case AIsX:
		return same
	case AIsY:
		return !same
	}
	return false
}
