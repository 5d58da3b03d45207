package policy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/ummavi/dqfd/internal/qfunc"
)

func values(q ...float64) *qfunc.ActionValues {
	return qfunc.NewActionValues(mat.NewDense(1, len(q), q))
}

func TestEpsilonGreedy_Decay(t *testing.T) {
	e := NewEpsilonGreedy(1.0, 0.1, 100, rand.New(rand.NewSource(1)))

	assert.InDelta(t, 1.0, e.Epsilon(0), 1e-9)
	assert.InDelta(t, 0.55, e.Epsilon(50), 1e-9)
	assert.InDelta(t, 0.1, e.Epsilon(100), 1e-9)
	assert.InDelta(t, 0.1, e.Epsilon(10000), 1e-9)
}

func TestEpsilonGreedy_AlwaysGreedyAtZeroEpsilon(t *testing.T) {
	e := NewEpsilonGreedy(0, 0, 0, rand.New(rand.NewSource(1)))
	v := values(0.1, 0.9, 0.2)

	for i := 0; i < 20; i++ {
		assert.Equal(t, 1, e.SelectAction(i, func() int { return 1 }, v))
	}
}

func TestEpsilonGreedy_ExplorationRate(t *testing.T) {
	e := NewEpsilonGreedy(0.5, 0.5, 0, rand.New(rand.NewSource(42)))
	v := values(0.0, 1.0)

	greedyCount := 0
	iterations := 2000
	for i := 0; i < iterations; i++ {
		if e.SelectAction(i, func() int { return 1 }, v) == 1 {
			greedyCount++
		}
	}
	// Greedy action chosen directly half the time plus half of the
	// uniform draws: expect ~75%.
	assert.InDelta(t, 0.75, float64(greedyCount)/float64(iterations), 0.05)
}

func TestSoftmax_PrefersHigherValues(t *testing.T) {
	s := NewSoftmax(0.5, exprand.NewSource(7))
	v := values(0.0, 2.0)

	high := 0
	iterations := 2000
	for i := 0; i < iterations; i++ {
		if s.SelectAction(i, func() int { return 1 }, v) == 1 {
			high++
		}
	}
	assert.Greater(t, float64(high)/float64(iterations), 0.9)
}
