package abx

import (
	"errors"
	"math/big"
)

// ErrNoTrials is returned when a binomial test is asked about zero trials.
var ErrNoTrials = errors.New("binomial test needs at least one trial")

// BinomialTestGreater returns the one-sided exact binomial p-value for
// observing at least correct successes in tries fair coin flips:
//
//	P(K >= correct), K ~ Binomial(tries, 0.5)
//	= sum_{k=correct}^{tries} C(tries, k) / 2^tries
//
// The tail is summed in exact integer arithmetic and rounded once, so
// small listening sessions get the same value a table would give.
//
// Inputs:
//   - correct: number of correct identifications. Values above tries
//     give a p-value of 0.
//   - tries: number of rounds. Must be at least 1.
//
// Outputs:
//   - float64: p-value in [0, 1].
//   - error: ErrNoTrials when tries is 0.
func BinomialTestGreater(correct, tries uint) (float64, error) {
	if tries == 0 {
		return 0, ErrNoTrials
	}
	if correct == 0 {
		return 1, nil
	}
	if correct > tries {
		return 0, nil
	}

	n := int64(tries)
	coef := new(big.Int).Binomial(n, int64(correct))
	sum := new(big.Int).Set(coef)
	for k := int64(correct); k < n; k++ {
		// C(n, k+1) = C(n, k) * (n-k) / (k+1), exact at every step.
		coef.Mul(coef, big.NewInt(n-k))
		coef.Quo(coef, big.NewInt(k+1))
		sum.Add(sum, coef)
	}

	denom := new(big.Int).Lsh(big.NewInt(1), uint(tries))
	p, _ := new(big.Rat).SetFrac(sum, denom).Float64()
	if p > 1 {
		p = 1
	}
	return p, nil
}

// CriticalCorrect returns the smallest number of correct answers out of
// tries whose p-value is at or below alpha, and false if even a perfect
// score would not reach it.
func CriticalCorrect(tries uint, alpha float64) (uint, bool) {
	if tries == 0 {
		return 0, false
	}
	// p is non-increasing in correct, so walk down from the top.
	best, found := tries, false
	for c := tries; ; c-- {
		p, err := BinomialTestGreater(c, tries)
		if err != nil || p > alpha {
			break
		}
		best, found = c, true
		if c == 0 {
			break
		}
	}
	return best, found
}

// MinimumTries returns how many consecutive correct answers are needed
// before a perfect score can reach alpha, i.e. the smallest n with
// 0.5^n <= alpha. It gives up at 64 rounds.
func MinimumTries(alpha float64) (uint, bool) {
	p := 1.0
	for n := uint(1); n <= 64; n++ {
		p /= 2
		if p <= alpha {
			return n, true
		}
	}
	return 0, false
}

// Significant reports whether p is at or below alpha.
func Significant(p, alpha float64) bool {
	return p <= alpha
}
