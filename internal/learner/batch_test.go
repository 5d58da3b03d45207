package learner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ummavi/dqfd/internal/replay"
)

func window(steps ...replay.Transition) *replay.Experience {
	return &replay.Experience{Steps: steps, Weight: 1}
}

func TestAssembleBatch_DiscountMatchesWindowLength(t *testing.T) {
	gamma := 0.99
	exps := []*replay.Experience{
		window(replay.Transition{State: []float64{1}, NextState: []float64{2}}),
		window(
			replay.Transition{State: []float64{1}, NextState: []float64{2}},
			replay.Transition{State: []float64{2}, NextState: []float64{3}},
		),
		window(
			replay.Transition{State: []float64{1}, NextState: []float64{2}},
			replay.Transition{State: []float64{2}, NextState: []float64{3}},
			replay.Transition{State: []float64{3}, NextState: []float64{4}},
		),
	}

	batch := AssembleBatch(exps, gamma, nil)
	for i, exp := range exps {
		assert.InDelta(t, math.Pow(gamma, float64(exp.Len())), batch.Discount[i], 1e-12)
	}
}

func TestAssembleBatch_NStepRewardIsDiscountedSum(t *testing.T) {
	gamma := 0.9
	exp := window(
		replay.Transition{State: []float64{0}, Reward: 1, NextState: []float64{1}},
		replay.Transition{State: []float64{1}, Reward: 2, NextState: []float64{2}},
		replay.Transition{State: []float64{2}, Reward: 4, NextState: []float64{3}},
	)

	batch := AssembleBatch([]*replay.Experience{exp}, gamma, nil)
	assert.InDelta(t, 1+0.9*2+0.81*4, batch.RewardNStep[0], 1e-12)
	assert.Equal(t, 1.0, batch.Reward1Step[0])
	assert.Equal(t, 3.0, batch.NextStatesNStep.At(0, 0))
	assert.Equal(t, 1.0, batch.NextStates1Step.At(0, 0))
}

func TestAssembleBatch_SingleStepRoundTrip(t *testing.T) {
	// A single-transition window has identical 1-step and n-step views.
	exp := window(replay.Transition{State: []float64{5}, Reward: 2.5, NextState: []float64{6}})

	batch := AssembleBatch([]*replay.Experience{exp}, 0.99, nil)
	assert.Equal(t, batch.Reward1Step[0], batch.RewardNStep[0])
	assert.Equal(t, batch.NextStates1Step.At(0, 0), batch.NextStatesNStep.At(0, 0))
}

func TestAssembleBatch_TerminalIfAnyStepTerminal(t *testing.T) {
	exps := []*replay.Experience{
		window(
			replay.Transition{State: []float64{0}, NextState: []float64{1}},
			replay.Transition{State: []float64{1}, Terminal: true},
		),
		window(
			replay.Transition{State: []float64{0}, NextState: []float64{1}},
			replay.Transition{State: []float64{1}, NextState: []float64{2}},
		),
	}

	batch := AssembleBatch(exps, 0.99, nil)
	assert.Equal(t, 1.0, batch.Terminal[0])
	assert.Equal(t, 0.0, batch.Terminal[1])
}

func TestAssembleBatch_NextActionsAllOrNothing(t *testing.T) {
	withNext := window(replay.Transition{
		State: []float64{0}, NextState: []float64{1}, NextAction: 3, HasNextAction: true,
	})
	withoutNext := window(replay.Transition{State: []float64{0}, NextState: []float64{1}})

	batch := AssembleBatch([]*replay.Experience{withNext}, 0.99, nil)
	require.NotNil(t, batch.NextActions)
	assert.Equal(t, []int{3}, batch.NextActions)

	batch = AssembleBatch([]*replay.Experience{withNext, withoutNext}, 0.99, nil)
	assert.Nil(t, batch.NextActions, "one missing next action omits the column for the whole batch")
}

func TestAssembleBatch_PhiAppliedToAllStateColumns(t *testing.T) {
	double := func(obs []float64) []float64 {
		out := make([]float64, len(obs))
		for i, v := range obs {
			out[i] = 2 * v
		}
		return out
	}
	exp := window(replay.Transition{State: []float64{1}, NextState: []float64{3}})

	batch := AssembleBatch([]*replay.Experience{exp}, 0.99, double)
	assert.Equal(t, 2.0, batch.States.At(0, 0))
	assert.Equal(t, 6.0, batch.NextStates1Step.At(0, 0))
	assert.Equal(t, 6.0, batch.NextStatesNStep.At(0, 0))
}

func TestAssembleBatch_NilNextStateLeavesZeroRow(t *testing.T) {
	exp := window(replay.Transition{State: []float64{1}, Terminal: true})

	batch := AssembleBatch([]*replay.Experience{exp}, 0.99, nil)
	assert.Equal(t, 0.0, batch.NextStates1Step.At(0, 0))
	assert.Equal(t, 1.0, batch.Terminal[0])
}

func TestAssembleBatch_CarriesWeights(t *testing.T) {
	exp := window(replay.Transition{State: []float64{1}, NextState: []float64{2}})
	exp.Weight = 0.25

	batch := AssembleBatch([]*replay.Experience{exp}, 0.99, nil)
	assert.Equal(t, []float64{0.25}, batch.Weights)
}
