// Package random provides the seedable draws used throughout the simulation.
package random

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Source is safe for concurrent use.
type Source struct {
	mu sync.Mutex
	r  *rand.Rand
}

func New(seed uint64) *Source {
	return &Source{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewFromTime seeds from the wall clock; use New for reproducible runs.
func NewFromTime() *Source {
	return New(uint64(time.Now().UnixNano()))
}

func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *Source) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// Uniform draws from [a, b).
func (s *Source) Uniform(a, b float64) float64 {
	return a + s.Float64()*(b-a)
}

// RandInt draws an integer from [a, b] inclusive.
func (s *Source) RandInt(a, b int) int {
	if b < a {
		a, b = b, a
	}
	return a + s.IntN(b-a+1)
}

func (s *Source) Gauss(mu, sigma float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mu + sigma*s.r.NormFloat64()
}

// TruncGauss redraws until the value lands in [lo, hi]; after a bounded
// number of misses the draw is clamped instead.
func (s *Source) TruncGauss(mu, sigma, lo, hi float64) float64 {
	for i := 0; i < 100; i++ {
		x := s.Gauss(mu, sigma)
		if x >= lo && x <= hi {
			return x
		}
	}
	return Bound(mu, lo, hi)
}

func (s *Source) Bool(p float64) bool {
	return s.Float64() < p
}

func (s *Source) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r.Shuffle(n, swap)
}

// Choice returns an index drawn proportionally to weights.
func (s *Source) Choice(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return s.IntN(len(weights))
	}
	x := s.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if x < w {
			return i
		}
		x -= w
	}
	return len(weights) - 1
}

func Shuffled[T any](s *Source, in []T) []T {
	out := append([]T(nil), in...)
	s.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func Bound(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func BoundInt(x, lo, hi int) int {
	return max(lo, min(hi, x))
}

// Mean returns 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// ZScores normalises xs to mean 0 and unit deviation. A constant series maps
// to zeros.
func ZScores(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) < 2 {
		return out
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if std == 0 {
		return out
	}
	for i, x := range xs {
		out[i] = (x - mean) / std
	}
	return out
}

func Round(x float64, step float64) float64 {
	if step == 0 {
		return x
	}
	return math.Round(x/step) * step
}
