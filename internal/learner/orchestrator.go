package learner

import (
	"math"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/ummavi/dqfd/internal/qfunc"
	"github.com/ummavi/dqfd/internal/replay"
)

// Accumulator selects how per-sample losses combine into a batch loss.
type Accumulator int

const (
	AccumulatorMean Accumulator = iota
	AccumulatorSum
)

// OrchestratorConfig carries the loss-combination hyperparameters.
type OrchestratorConfig struct {
	Gamma     float64
	ClipDelta bool

	DemoSupervisedMargin float64
	CoeffNStep           float64
	CoeffSupervised      float64

	BonusPriorityAgent float64
	BonusPriorityDemo  float64

	Accumulator      Accumulator
	AverageLossDecay float64
	Phi              Phi
}

// Orchestrator runs one combined update per call: 1-step and n-step
// double-estimator TD losses, the large-margin supervised loss over the
// demonstration subset, one backward pass, one optimizer step, and the
// priority feedback into the replay buffer. The running average-loss
// statistic is owned here as an explicit field.
type Orchestrator struct {
	cfg       OrchestratorConfig
	buffer    *replay.Buffer
	model     qfunc.Estimator
	target    qfunc.Estimator
	optimizer qfunc.Optimizer

	// mu guards averageLoss, read by the stats HTTP server while
	// updates write it.
	mu          sync.RWMutex
	averageLoss float64

	logger zerolog.Logger
}

// NewOrchestrator wires the update pipeline. target should start as a
// copy of model; SyncTarget keeps it aligned thereafter.
func NewOrchestrator(buffer *replay.Buffer, model, target qfunc.Estimator, optimizer qfunc.Optimizer, cfg OrchestratorConfig, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		buffer:    buffer,
		model:     model,
		target:    target,
		optimizer: optimizer,
		logger:    logger.With().Str("component", "update_orchestrator").Logger(),
	}
}

// AverageLoss returns the decayed running average of the combined loss.
func (o *Orchestrator) AverageLoss() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.averageLoss
}

// SyncTarget synchronizes the target estimator from the online one.
// tau 1 is a hard copy, tau in (0, 1) a soft update.
func (o *Orchestrator) SyncTarget(tau float64) {
	qfunc.SyncTarget(o.target, o.model, tau)
}

// Update performs the combined DQfD update over one sample draw. The
// two lists must come from the buffer's most recent draw so the error
// feedback lines up with the pools' last-sampled bookkeeping.
func (o *Orchestrator) Update(experiencesAgent, experiencesDemo []*replay.Experience) error {
	numAgent := len(experiencesAgent)
	experiences := make([]*replay.Experience, 0, numAgent+len(experiencesDemo))
	experiences = append(experiences, experiencesAgent...)
	experiences = append(experiences, experiencesDemo...)
	if len(experiences) == 0 {
		return nil
	}

	batch := AssembleBatch(experiences, o.cfg.Gamma, o.cfg.Phi)

	// One forward pass over current states, cached: the supervised loss
	// below reuses these Q-values rather than paying for (and risking
	// inconsistency from) a second pass.
	av := o.model.Forward(batch.States)
	y := av.Evaluate(batch.Actions)

	targetsNStep := o.targets(batch.NextStatesNStep, batch.RewardNStep, batch.Discount, batch.Terminal)
	gamma1 := make([]float64, batch.Size)
	for i := range gamma1 {
		gamma1[i] = o.cfg.Gamma
	}
	targets1Step := o.targets(batch.NextStates1Step, batch.Reward1Step, gamma1, batch.Terminal)

	// Priorities feed from the 1-step error only, with per-origin bonus
	// offsets so neither pool decays toward zero sampling probability.
	errorsAgent := make([]float64, numAgent)
	errorsDemo := make([]float64, batch.Size-numAgent)
	for i := range y {
		e := math.Abs(y[i] - targets1Step[i])
		if i < numAgent {
			errorsAgent[i] = e + o.cfg.BonusPriorityAgent
		} else {
			errorsDemo[i-numAgent] = e + o.cfg.BonusPriorityDemo
		}
	}
	o.buffer.UpdateErrors(errorsAgent, errorsDemo)

	loss1, grad1 := o.valueLoss(y, targets1Step, batch.Weights)
	lossN, gradN := o.valueLoss(y, targetsNStep, batch.Weights)

	grad := mat.NewDense(batch.Size, av.NumActions(), nil)
	for i, a := range batch.Actions {
		grad.Set(i, a, grad1[i]+o.cfg.CoeffNStep*gradN[i])
	}
	lossSupervised := o.supervisedLoss(av.Values(), batch.Actions, numAgent, grad)

	lossCombined := loss1 + o.cfg.CoeffNStep*lossN + o.cfg.CoeffSupervised*lossSupervised

	// L2 regularization is the optimizer's business, not part of the
	// combined loss.
	o.model.Backward(batch.States, grad)
	o.optimizer.Step(o.model)

	o.mu.Lock()
	o.averageLoss *= o.cfg.AverageLossDecay
	o.averageLoss += (1 - o.cfg.AverageLossDecay) * lossCombined
	o.mu.Unlock()

	o.logger.Debug().
		Int("batch_size", batch.Size).
		Int("num_agent", numAgent).
		Float64("loss", lossCombined).
		Msg("update applied")
	return nil
}

// targets computes double-estimator bootstrapped targets: greedy action
// chosen by the online estimator, value taken from the target
// estimator, discounted per sample and masked on terminal windows.
func (o *Orchestrator) targets(nextStates *mat.Dense, rewards, discounts, terminal []float64) []float64 {
	greedy := o.model.Forward(nextStates).Greedy()
	nextValues := o.target.Forward(nextStates).Evaluate(greedy)

	out := make([]float64, len(rewards))
	for i := range out {
		out[i] = rewards[i] + discounts[i]*(1-terminal[i])*nextValues[i]
	}
	return out
}

// valueLoss computes the importance-weighted TD loss and its gradient
// with respect to the predicted values. With ClipDelta the per-sample
// loss is the Huber loss (delta 1); otherwise half squared error.
func (o *Orchestrator) valueLoss(y, targets, weights []float64) (float64, []float64) {
	n := len(y)
	loss := 0.0
	grad := make([]float64, n)
	for i := range y {
		d := y[i] - targets[i]
		var li, gi float64
		if o.cfg.ClipDelta {
			if math.Abs(d) <= 1 {
				li = 0.5 * d * d
				gi = d
			} else {
				li = math.Abs(d) - 0.5
				gi = math.Copysign(1, d)
			}
		} else {
			li = 0.5 * d * d
			gi = d
		}
		loss += weights[i] * li
		grad[i] = weights[i] * gi
	}
	if o.cfg.Accumulator == AccumulatorMean {
		loss /= float64(n)
		for i := range grad {
			grad[i] /= float64(n)
		}
	}
	return loss, grad
}

// supervisedLoss computes the large-margin classification loss over the
// demonstration suffix of the batch and accumulates its coefficient-
// scaled gradient into grad. Every non-expert action's Q-value is
// margin-augmented before taking the max, so the expert action is
// penalized unless it wins by at least the margin.
func (o *Orchestrator) supervisedLoss(q *mat.Dense, actions []int, numAgent int, grad *mat.Dense) float64 {
	n, _ := q.Dims()
	numDemo := n - numAgent
	if numDemo == 0 {
		return 0
	}

	scale := o.cfg.CoeffSupervised
	if o.cfg.Accumulator == AccumulatorMean {
		scale /= float64(numDemo)
	}

	loss := 0.0
	for i := numAgent; i < n; i++ {
		expert := actions[i]
		best := expert
		bestValue := q.At(i, expert) // margin 0 for the expert's action
		_, numActions := q.Dims()
		for a := 0; a < numActions; a++ {
			if a == expert {
				continue
			}
			if v := q.At(i, a) + o.cfg.DemoSupervisedMargin; v > bestValue {
				best = a
				bestValue = v
			}
		}
		loss += bestValue - q.At(i, expert)
		if best != expert {
			grad.Set(i, best, grad.At(i, best)+scale)
			grad.Set(i, expert, grad.At(i, expert)-scale)
		}
	}
	if o.cfg.Accumulator == AccumulatorMean {
		loss /= float64(numDemo)
	}
	return loss
}
