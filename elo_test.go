package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWinProbability(t *testing.T) {
	tests := []struct {
		name     string
		rating1  int
		rating2  int
		expected float64
	}{
		{"equal ratings", 1200, 1200, 0.5},
		{"200 point favorite", 1400, 1200, 0.76},
		{"200 point underdog", 1000, 1200, 0.24},
		{"400 point favorite", 1200, 800, 0.91},
		{"800 point favorite", 2000, 1200, 0.99},
		{"800 point underdog", 1200, 2000, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, WinProbability(tt.rating1, tt.rating2), 0.0001)
		})
	}
}

func TestWinProbabilityBounds(t *testing.T) {
	ratings := []int{-5000, -100, 0, 800, 1200, 2000, 10000}
	for _, r1 := range ratings {
		for _, r2 := range ratings {
			p := WinProbability(r1, r2)
			assert.GreaterOrEqual(t, p, 0.0, "p(%d, %d)", r1, r2)
			assert.LessOrEqual(t, p, 1.0, "p(%d, %d)", r1, r2)
		}
	}
}

func TestWinProbabilityComplementary(t *testing.T) {
	pairs := [][2]int{{1200, 1200}, {1400, 1200}, {1200, 800}, {2000, 1200}}
	for _, pair := range pairs {
		sum := WinProbability(pair[0], pair[1]) + WinProbability(pair[1], pair[0])
		assert.InDelta(t, 1.0, sum, 0.0001, "p(%d,%d) + p(%d,%d)", pair[0], pair[1], pair[1], pair[0])
	}
}

func TestComputeDelta(t *testing.T) {
	tests := []struct {
		name         string
		winnerRating int
		loserRating  int
		multiplier   float64
		expected     int
	}{
		{"equal ratings bo3", 1200, 1200, 1.0, 25},
		{"equal ratings bo5", 1200, 1200, 1.5, 38},
		{"equal ratings bo9", 1200, 1200, 2.5, 63},
		{"favorite wins bo3", 1400, 1200, 1.0, 12},
		{"favorite wins bo5", 1400, 1200, 1.5, 18},
		{"favorite wins bo9", 1400, 1200, 2.5, 30},
		{"upset bo3", 1000, 1200, 1.0, 38},
		{"upset bo5", 1000, 1200, 1.5, 57},
		{"upset bo9", 1000, 1200, 2.5, 95},
		// The 0.91 win chance leaves a base of (1-0.91)*50, which float64
		// represents as 4.4999..., so the base rounds to 4, not 5.
		{"heavy favorite bo3", 1200, 800, 1.0, 4},
		{"heavy favorite bo5", 1200, 800, 1.5, 6},
		{"heavy favorite bo9", 1200, 800, 2.5, 10},
		{"extreme favorite bo3", 2000, 1200, 1.0, 1},
		{"extreme favorite bo9", 2000, 1200, 2.5, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, err := ComputeDelta(tt.winnerRating, tt.loserRating, tt.multiplier)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, delta)
		})
	}
}

// The base delta is rounded before the multiplier is applied, then rounded
// again. Applying the multiplier first would give 37 instead of 38 for the
// equal-rating bo5 case.
func TestComputeDeltaRoundingOrder(t *testing.T) {
	delta, err := ComputeDelta(1200, 1200, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 38, delta)
}

func TestComputeDeltaInvalidMultiplier(t *testing.T) {
	_, err := ComputeDelta(1200, 1200, math.NaN())
	assert.Error(t, err)

	_, err = ComputeDelta(1200, 1200, -1.0)
	assert.Error(t, err)
}

func TestComputeDeltaNegativeRatings(t *testing.T) {
	// Ratings are never clamped; deltas still compute below zero.
	delta, err := ComputeDelta(-100, -300, 1.0)
	require.NoError(t, err)
	assert.Greater(t, delta, 0)
}

func TestParseStakes(t *testing.T) {
	tests := []struct {
		input      string
		threshold  int
		multiplier float64
	}{
		{"bo3", 2, 1.0},
		{"bo5", 3, 1.5},
		{"bo9", 5, 2.5},
	}

	for _, tt := range tests {
		stakes, ok := ParseStakes(tt.input)
		require.True(t, ok, tt.input)
		assert.Equal(t, tt.input, stakes.Name)
		assert.Equal(t, tt.threshold, stakes.Threshold)
		assert.Equal(t, tt.multiplier, stakes.Multiplier)
	}

	_, ok := ParseStakes("bo7")
	assert.False(t, ok)
	_, ok = ParseStakes("")
	assert.False(t, ok)
}
