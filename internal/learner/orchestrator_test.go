package learner

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ummavi/dqfd/internal/qfunc"
	"github.com/ummavi/dqfd/internal/replay"
)

func newOrchestratorFixture(t *testing.T) (*Orchestrator, *replay.Buffer, *qfunc.Linear) {
	t.Helper()
	cfg := replay.DefaultConfig()
	cfg.NumSteps = 2
	buf := replay.NewBuffer(cfg, zerolog.Nop())

	rng := rand.New(rand.NewSource(7))
	model := qfunc.NewLinear(2, 2, rng)
	target := model.Clone()
	opt := &qfunc.SGD{LearningRate: 0.05}

	orch := NewOrchestrator(buf, model, target, opt, OrchestratorConfig{
		Gamma:                0.99,
		ClipDelta:            true,
		DemoSupervisedMargin: 0.8,
		CoeffNStep:           1.0,
		CoeffSupervised:      1.0,
		BonusPriorityAgent:   0.001,
		BonusPriorityDemo:    1.0,
		Accumulator:          AccumulatorMean,
		AverageLossDecay:     0.99,
	}, zerolog.Nop())
	return orch, buf, model
}

func appendEpisode(buf *replay.Buffer, origin replay.Origin, steps int) {
	for i := 0; i < steps; i++ {
		buf.Append(0, origin, replay.Transition{
			State:         []float64{float64(i), 1},
			Action:        i % 2,
			Reward:        1,
			NextState:     []float64{float64(i + 1), 1},
			NextAction:    (i + 1) % 2,
			HasNextAction: true,
		})
	}
	buf.StopCurrentEpisode(0, origin)
}

func TestOrchestrator_EmptyUpdateIsNoop(t *testing.T) {
	orch, _, _ := newOrchestratorFixture(t)
	require.NoError(t, orch.Update(nil, nil))
	assert.Zero(t, orch.AverageLoss())
}

func TestOrchestrator_UpdateMovesAverageLossAndParameters(t *testing.T) {
	orch, buf, model := newOrchestratorFixture(t)
	appendEpisode(buf, replay.OriginDemo, 6)

	before := mat.DenseCopyOf(model.Parameters()[0])

	demo, err := buf.SampleDemoOnly(4)
	require.NoError(t, err)
	require.NoError(t, orch.Update(nil, demo))

	assert.NotZero(t, orch.AverageLoss())
	assert.False(t, mat.Equal(before, model.Parameters()[0]), "optimizer step must change the weights")
}

func TestOrchestrator_UpdateFeedsPositivePrioritiesBack(t *testing.T) {
	orch, buf, _ := newOrchestratorFixture(t)
	appendEpisode(buf, replay.OriginAgent, 8)
	appendEpisode(buf, replay.OriginDemo, 8)

	agent, demo, err := buf.Sample(6)
	require.NoError(t, err)
	require.NoError(t, orch.Update(agent, demo))

	stats := buf.Stats()
	assert.Greater(t, stats.AgentPriorityMass, 0.0)
	assert.Greater(t, stats.DemoPriorityMass, 0.0)

	// A further draw must still work after the priority write-back.
	_, _, err = buf.Sample(6)
	require.NoError(t, err)
}

func TestOrchestrator_AgentOnlyBatchSkipsSupervisedLoss(t *testing.T) {
	orch, buf, _ := newOrchestratorFixture(t)
	appendEpisode(buf, replay.OriginAgent, 8)

	agent, demo, err := buf.Sample(4)
	require.NoError(t, err)
	require.Empty(t, demo)
	require.NoError(t, orch.Update(agent, demo))

	assert.False(t, math.IsNaN(orch.AverageLoss()))
	assert.False(t, math.IsInf(orch.AverageLoss(), 0))
}

func TestOrchestrator_RepeatedDemoUpdatesReduceLoss(t *testing.T) {
	orch, buf, _ := newOrchestratorFixture(t)

	// Twelve single-step expert episodes over one state, expert always
	// taking action 1 for reward 0.5. The fixed point is exactly
	// representable by the linear estimator, so the loss must fall.
	for i := 0; i < 12; i++ {
		buf.Append(0, replay.OriginDemo, replay.Transition{
			State:    []float64{1, 1},
			Action:   1,
			Reward:   0.5,
			Terminal: true,
		})
	}

	var first, last float64
	for i := 0; i < 500; i++ {
		demo, err := buf.SampleDemoOnly(8)
		require.NoError(t, err)
		require.NoError(t, orch.Update(nil, demo))
		if i == 0 {
			first = orch.AverageLoss()
		}
		last = orch.AverageLoss()
		if i%20 == 0 {
			orch.SyncTarget(1)
		}
	}
	assert.Less(t, last, first, "training on a stationary demo set should drive the loss down")
}

func TestOrchestrator_SyncTargetHardCopiesOnlineEstimator(t *testing.T) {
	orch, buf, model := newOrchestratorFixture(t)
	appendEpisode(buf, replay.OriginDemo, 6)

	demo, err := buf.SampleDemoOnly(4)
	require.NoError(t, err)
	require.NoError(t, orch.Update(nil, demo))

	orch.SyncTarget(1)

	states := mat.NewDense(1, 2, []float64{1, 1})
	online := model.Forward(states).Values()
	target := orch.target.Forward(states).Values()
	assert.True(t, mat.EqualApprox(online, target, 1e-12))
}
