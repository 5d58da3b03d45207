package policy

import (
	"math/rand"

	"github.com/ummavi/dqfd/internal/qfunc"
)

// EpsilonGreedy explores uniformly with probability epsilon, decayed
// linearly from StartEpsilon to EndEpsilon over DecaySteps.
type EpsilonGreedy struct {
	StartEpsilon float64
	EndEpsilon   float64
	DecaySteps   int

	rng *rand.Rand
}

// NewEpsilonGreedy creates a linearly decaying epsilon-greedy explorer.
func NewEpsilonGreedy(start, end float64, decaySteps int, rng *rand.Rand) *EpsilonGreedy {
	return &EpsilonGreedy{
		StartEpsilon: start,
		EndEpsilon:   end,
		DecaySteps:   decaySteps,
		rng:          rng,
	}
}

// Epsilon returns the exploration rate at the given step.
func (e *EpsilonGreedy) Epsilon(step int) float64 {
	if e.DecaySteps <= 0 || step >= e.DecaySteps {
		return e.EndEpsilon
	}
	frac := float64(step) / float64(e.DecaySteps)
	return e.StartEpsilon + (e.EndEpsilon-e.StartEpsilon)*frac
}

// SelectAction implements Explorer.
func (e *EpsilonGreedy) SelectAction(step int, greedy func() int, values *qfunc.ActionValues) int {
	if e.rng.Float64() < e.Epsilon(step) {
		return e.rng.Intn(values.NumActions())
	}
	return greedy()
}
