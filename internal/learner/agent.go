package learner

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/ummavi/dqfd/internal/metrics"
	"github.com/ummavi/dqfd/internal/policy"
	"github.com/ummavi/dqfd/internal/qfunc"
	"github.com/ummavi/dqfd/internal/replay"
)

// demoEnvID keys the transition window used while preloading
// demonstration episodes, kept apart from live environment ids.
const demoEnvID = -1

// TargetUpdateMethod selects hard or exponential soft target sync.
type TargetUpdateMethod string

const (
	TargetUpdateHard TargetUpdateMethod = "hard"
	TargetUpdateSoft TargetUpdateMethod = "soft"
)

// AgentConfig carries the interaction-loop parameters.
type AgentConfig struct {
	NPretrainSteps       int
	TargetUpdateInterval int
	TargetUpdateMethod   TargetUpdateMethod
	SoftUpdateTau        float64
	AverageQDecay        float64
	Phi                  Phi
}

// Agent is the Deep Q-learning from Demonstrations agent loop: it
// pretrains from the demonstration pool, then interleaves acting,
// buffering and scheduled updates during self-play.
type Agent struct {
	cfg       AgentConfig
	buffer    *replay.Buffer
	scheduler *Scheduler
	orch      *Orchestrator
	model     qfunc.Estimator
	explorer  policy.Explorer

	lastObs  []float64
	lastAct  int
	hasLast  bool
	batchObs map[int][]float64
	batchAct map[int]int

	// mu guards t and averageQ, which the stats HTTP server reads while
	// the training loop writes them.
	mu       sync.RWMutex
	t        int
	averageQ float64

	collector *metrics.Collector
	logger    zerolog.Logger
}

// NewAgent assembles the agent from its collaborators.
func NewAgent(cfg AgentConfig, buffer *replay.Buffer, scheduler *Scheduler, orch *Orchestrator, model qfunc.Estimator, explorer policy.Explorer, collector *metrics.Collector, logger zerolog.Logger) *Agent {
	return &Agent{
		cfg:       cfg,
		buffer:    buffer,
		scheduler: scheduler,
		orch:      orch,
		model:     model,
		explorer:  explorer,
		batchObs:  make(map[int][]float64),
		batchAct:  make(map[int]int),
		collector: collector,
		logger:    logger.With().Str("component", "agent").Logger(),
	}
}

// Step returns the agent's step counter.
func (a *Agent) Step() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.t
}

// AverageQ returns the decayed running average of the greedy Q-value.
func (a *Agent) AverageQ() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.averageQ
}

// AverageLoss returns the orchestrator's running average loss.
func (a *Agent) AverageLoss() float64 { return a.orch.AverageLoss() }

// LoadDemonstrations feeds expert episodes into the persistent demo
// pool. Episodes ending without a terminal transition are flushed
// through the abandonment path.
func (a *Agent) LoadDemonstrations(episodes [][]replay.Transition) {
	total := 0
	for _, episode := range episodes {
		for _, tr := range episode {
			a.buffer.Append(demoEnvID, replay.OriginDemo, tr)
		}
		a.buffer.StopCurrentEpisode(demoEnvID, replay.OriginDemo)
		total += len(episode)
	}
	a.logger.Info().
		Int("episodes", len(episodes)).
		Int("transitions", total).
		Int("demo_pool_size", a.buffer.LenDemo()).
		Msg("demonstrations loaded")
}

// Pretrain runs the configured number of demonstration-only updates,
// syncing the target estimator on the usual interval. Intended to run
// once, before any environment interaction.
func (a *Agent) Pretrain() error {
	for i := 0; i < a.cfg.NPretrainSteps; i++ {
		if err := a.scheduler.PretrainStep(); err != nil {
			return fmt.Errorf("pretrain step %d: %w", i, err)
		}
		if a.cfg.TargetUpdateInterval > 0 && i%a.cfg.TargetUpdateInterval == 0 {
			a.syncTarget()
		}
		a.collector.PretrainStep(i, a.orch.AverageLoss())
	}
	return nil
}

// Act returns the greedy action for an observation without training
// side effects.
func (a *Agent) Act(obs []float64) int {
	return a.forward(obs).Greedy()[0]
}

// ActAndTrain advances the single-environment interaction loop: select
// an action for obs, record the transition completed by reward, and
// fire any scheduled updates.
func (a *Agent) ActAndTrain(obs []float64, reward float64) (int, error) {
	av := a.forward(obs)
	greedy := av.Greedy()[0]

	a.mu.Lock()
	a.averageQ *= a.cfg.AverageQDecay
	a.averageQ += (1 - a.cfg.AverageQDecay) * av.Max()[0]
	step := a.t
	a.t++
	a.mu.Unlock()

	action := a.explorer.SelectAction(step, func() int { return greedy }, av)
	a.maybeSyncTarget()

	if a.hasLast {
		a.buffer.Append(0, replay.OriginAgent, replay.Transition{
			State:         a.lastObs,
			Action:        a.lastAct,
			Reward:        reward,
			NextState:     obs,
			NextAction:    action,
			HasNextAction: true,
		})
	}
	a.lastObs = obs
	a.lastAct = action

	a.hasLast = true
	if err := a.scheduler.UpdateIfNecessary(a.t); err != nil {
		return action, err
	}
	return action, nil
}

// StopEpisodeAndTrain closes the episode with a terminal transition and
// drains the environment's window.
func (a *Agent) StopEpisodeAndTrain(obs []float64, reward float64) error {
	if a.hasLast {
		a.buffer.Append(0, replay.OriginAgent, replay.Transition{
			State:     a.lastObs,
			Action:    a.lastAct,
			Reward:    reward,
			NextState: obs,
			Terminal:  true,
		})
	}
	// The terminal append already flushed the window; this only covers
	// an episode abandoned before any terminal flag arrived.
	a.buffer.StopCurrentEpisode(0, replay.OriginAgent)
	a.hasLast = false
	return a.scheduler.UpdateIfNecessary(a.t)
}

// BatchAct selects actions for a batch of concurrently stepped
// environments, recording each as that environment's pending action.
func (a *Agent) BatchAct(obs [][]float64) []int {
	actions := make([]int, len(obs))
	for i, o := range obs {
		av := a.forward(o)
		greedy := av.Greedy()[0]
		actions[i] = a.explorer.SelectAction(a.t, func() int { return greedy }, av)
		a.batchObs[i] = o
		a.batchAct[i] = actions[i]
	}
	return actions
}

// BatchObserveAndTrain records outcomes for a batch of environments,
// flushing windows for environments that finished or were reset, and
// fires scheduled updates as the step counter advances.
func (a *Agent) BatchObserveAndTrain(obs [][]float64, rewards []float64, done, reset []bool) error {
	for i := range obs {
		a.mu.Lock()
		a.t++
		a.mu.Unlock()
		a.maybeSyncTarget()

		if last, ok := a.batchObs[i]; ok {
			a.buffer.Append(i, replay.OriginAgent, replay.Transition{
				State:     last,
				Action:    a.batchAct[i],
				Reward:    rewards[i],
				NextState: obs[i],
				Terminal:  done[i],
			})
			if done[i] || reset[i] {
				delete(a.batchObs, i)
				delete(a.batchAct, i)
				a.buffer.StopCurrentEpisode(i, replay.OriginAgent)
			}
		}
		if err := a.scheduler.UpdateIfNecessary(a.t); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) forward(obs []float64) *qfunc.ActionValues {
	features := obs
	if a.cfg.Phi != nil {
		features = a.cfg.Phi(obs)
	}
	row := make([]float64, len(features))
	copy(row, features)
	return a.model.Forward(mat.NewDense(1, len(row), row))
}

func (a *Agent) maybeSyncTarget() {
	if a.cfg.TargetUpdateInterval > 0 && a.t%a.cfg.TargetUpdateInterval == 0 {
		a.syncTarget()
	}
}

func (a *Agent) syncTarget() {
	if a.cfg.TargetUpdateMethod == TargetUpdateSoft {
		a.orch.SyncTarget(a.cfg.SoftUpdateTau)
	} else {
		a.orch.SyncTarget(1.0)
	}
	a.collector.TargetSynced(a.t)
}
