package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeededSourcesAgree(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Gauss(0, 1), b.Gauss(0, 1))
		assert.Equal(t, a.IntN(100), b.IntN(100))
	}
}

func TestTruncGaussStaysInRange(t *testing.T) {
	s := New(7)
	for i := 0; i < 500; i++ {
		x := s.TruncGauss(50, 30, 40, 60)
		assert.GreaterOrEqual(t, x, 40.0)
		assert.LessOrEqual(t, x, 60.0)
	}
}

func TestRandIntInclusive(t *testing.T) {
	s := New(1)
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		v := s.RandInt(1, 3)
		assert.True(t, v >= 1 && v <= 3)
		seen[v] = true
	}
	assert.Len(t, seen, 3)
}

func TestChoiceSkipsZeroWeights(t *testing.T) {
	s := New(3)
	for i := 0; i < 100; i++ {
		assert.Equal(t, 1, s.Choice([]float64{0, 5, 0}))
	}
}

func TestMeanAndZScores(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)

	z := ZScores([]float64{1, 2, 3})
	assert.InDelta(t, -1.0, z[0], 1e-9)
	assert.InDelta(t, 0.0, z[1], 1e-9)
	assert.Equal(t, []float64{0, 0}, ZScores([]float64{4, 4}))
}

func TestBoundAndRound(t *testing.T) {
	assert.Equal(t, 1.0, Bound(3, 0, 1))
	assert.Equal(t, 0, BoundInt(-4, 0, 10))
	assert.Equal(t, 1250.0, Round(1234, 50))
}
