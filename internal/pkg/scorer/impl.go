package scorer

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	fixedPoint = 100

	// affinity bonus is 130/100
	affinityNumerator = 130
)

var (
	ErrMoveSetLengthMismatch = errors.New("move sets differ in length")
	ErrWeightTableOverflow   = errors.New("move set longer than weight table")
)

// Weights are indexed by move position.
//
//nolint:gochecknoglobals
var Weights = [...]int64{78, 79, 81, 86, 100}

// Score is the signed duel outcome; positive favours the first player.
// Inputs are bounded (|diff| <= 128, five positions), so int64 holds every
// intermediate value exactly.
type Score int64

func (s Score) Negative() bool {
	return s < 0
}

// Magnitude is |s| as the ledger's unsigned integer.
func (s Score) Magnitude() *big.Int {
	magnitude := big.NewInt(int64(s))

	return magnitude.Abs(magnitude)
}

func CriticalDiff(diff int64) int64 {
	if diff*diff == 4 {
		return -(diff >> 1)
	}

	return diff
}

// ComputeScore is the settlement score of moves1 against moves2. The affinity
// bonus only looks at the first player's move.
func ComputeScore(moves1, moves2 []byte, affinity1, affinity2 uint8) (Score, error) {
	if len(moves1) != len(moves2) {
		return 0, fmt.Errorf("%w: %d != %d", ErrMoveSetLengthMismatch, len(moves1), len(moves2))
	}

	if len(moves1) > len(Weights) {
		return 0, fmt.Errorf("%w: %d > %d", ErrWeightTableOverflow, len(moves1), len(Weights))
	}

	var score int64

	for n := range moves1 {
		// signed byte subtraction, wrapping like the deployed contract
		//nolint:gosec
		diff := int64(int8(moves1[n]) - int8(moves2[n]))

		diff = CriticalDiff(diff) * fixedPoint

		if moves1[n] == affinity1 || moves1[n] == affinity2 {
			diff = diff * affinityNumerator / fixedPoint
		}

		score += diff * Weights[n]
	}

	return Score(score / fixedPoint), nil
}
