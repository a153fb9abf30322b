package main

import (
	"fmt"
	"math"
)

// ============================================================================
// ELO Rating
// ============================================================================

// eloK is the K value used in all ELO calculations.
const eloK = 50

// Stakes describes a duel length option: how many round wins it takes to win
// the match and how heavily the result is weighted.
type Stakes struct {
	Name       string
	Threshold  int
	Multiplier float64
}

// ParseStakes resolves a duel type string (bo3, bo5, bo9) to its stakes.
func ParseStakes(duelType string) (Stakes, bool) {
	switch duelType {
	case "bo3":
		return Stakes{Name: "bo3", Threshold: 2, Multiplier: 1.0}, true
	case "bo5":
		return Stakes{Name: "bo5", Threshold: 3, Multiplier: 1.5}, true
	case "bo9":
		return Stakes{Name: "bo9", Threshold: 5, Multiplier: 2.5}, true
	}
	return Stakes{}, false
}

// WinProbability returns the chance of the first player beating the second,
// rounded to two decimal places.
func WinProbability(rating1, rating2 int) float64 {
	power := float64(rating2-rating1) / 400
	return math.Round(1/(1+math.Pow(10, power))*100) / 100
}

// ComputeDelta returns the number of rating points transferred from the loser
// to the winner. The base delta is rounded before the stakes multiplier is
// applied, and the scaled delta is rounded again afterwards.
func ComputeDelta(winnerRating, loserRating int, multiplier float64) (int, error) {
	if math.IsNaN(multiplier) || multiplier < 0 {
		return 0, fmt.Errorf("invalid stakes multiplier: %v", multiplier)
	}

	chance := WinProbability(winnerRating, loserRating)
	base := math.Round((1 - chance) * eloK)
	return int(math.Round(base * multiplier)), nil
}
