package replay

import (
	"math"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// WeightNormalization selects how importance weights are normalized.
type WeightNormalization int

const (
	// NormalizeByBatchMin divides each sampled probability by the
	// smallest probability in the sampled batch.
	NormalizeByBatchMin WeightNormalization = iota
	// NormalizeByPoolMax divides by the pool-wide minimum probability,
	// i.e. normalizes against the maximum possible weight in the pool.
	NormalizeByPoolMax
	// NormalizeNone leaves weights as (n*p)^-beta.
	NormalizeNone
)

// Config holds the prioritized-replay parameters for a Buffer.
type Config struct {
	// Capacity bounds the agent pool; the demo pool is never bounded.
	Capacity int
	// NumSteps is the maximum transition-window length N.
	NumSteps int

	Alpha     float64
	Beta0     float64
	BetaSteps int
	Eps       float64
	ErrorMin  float64
	ErrorMax  float64

	Normalization WeightNormalization
	Seed          int64
}

// DefaultConfig returns the standard prioritized-replay parameters.
func DefaultConfig() Config {
	return Config{
		Capacity:  100000,
		NumSteps:  10,
		Alpha:     0.6,
		Beta0:     0.4,
		BetaSteps: 200000,
		Eps:       0.01,
		ErrorMin:  0,
		ErrorMax:  1,
		Seed:      1,
	}
}

// Stats is a point-in-time snapshot of the buffer.
type Stats struct {
	AgentSize         int     `json:"agent_size"`
	DemoSize          int     `json:"demo_size"`
	AgentPriorityMass float64 `json:"agent_priority_mass"`
	DemoPriorityMass  float64 `json:"demo_priority_mass"`
	Beta              float64 `json:"beta"`
}

// Buffer owns the two priority pools and the per-environment transition
// windows of the dual prioritized replay buffer: a bounded agent pool
// fed by self-play and an unbounded demo pool holding expert
// demonstrations persistently. All methods serialize on an internal
// mutex; eviction in the agent pool can therefore never interleave with
// a concurrent sample draw.
type Buffer struct {
	mu      sync.Mutex
	cfg     Config
	agent   *Pool
	demo    *Pool
	windows *windowAggregator

	beta    float64
	betaAdd float64

	binomSrc exprand.Source
	logger   zerolog.Logger
}

// NewBuffer creates a dual replay buffer with the given parameters.
func NewBuffer(cfg Config, logger zerolog.Logger) *Buffer {
	rng := rand.New(rand.NewSource(cfg.Seed))
	betaAdd := 0.0
	if cfg.BetaSteps > 0 {
		betaAdd = (1 - cfg.Beta0) / float64(cfg.BetaSteps)
	}
	return &Buffer{
		cfg:      cfg,
		agent:    NewPool(cfg.Capacity, rng),
		demo:     NewPool(0, rng),
		windows:  newWindowAggregator(cfg.NumSteps),
		beta:     cfg.Beta0,
		betaAdd:  betaAdd,
		binomSrc: exprand.NewSource(uint64(cfg.Seed)),
		logger:   logger.With().Str("component", "replay_buffer").Logger(),
	}
}

// Append routes a transition into the environment's sliding window and
// stores any emitted windows in the pool selected by origin.
func (b *Buffer) Append(envID int, origin Origin, t Transition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, win := range b.windows.Append(envID, t) {
		b.pool(origin).Append(&Experience{Steps: win})
	}
}

// StopCurrentEpisode flushes an abandoned episode's window (an external
// reset without a terminal flag) into the pool selected by origin.
func (b *Buffer) StopCurrentEpisode(envID int, origin Origin) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, win := range b.windows.StopCurrentEpisode(envID) {
		b.pool(origin).Append(&Experience{Steps: win})
	}
}

// Sample draws n experiences split across the two pools, the split
// drawn from Binomial(n, massAgent/massTotal) and clamped so the agent
// share never exceeds the agent pool size. The two lists are returned
// separately so callers can track provenance; each sampled experience
// carries its importance weight. Returns ErrUnderflow when either pool
// cannot supply its share.
func (b *Buffer) Sample(n int) ([]*Experience, []*Experience, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n == 0 {
		return nil, nil, nil
	}
	massAgent := b.agent.TotalPriority()
	massTotal := massAgent + b.demo.TotalPriority()
	if massTotal == 0 {
		return nil, nil, ErrUnderflow
	}

	binom := distuv.Binomial{N: float64(n), P: massAgent / massTotal, Src: b.binomSrc}
	k := int(binom.Rand())
	if k > b.agent.Len() {
		k = b.agent.Len()
	}

	sampledAgent, err := b.sampleFrom(b.agent, k)
	if err != nil {
		return nil, nil, err
	}
	sampledDemo, err := b.sampleFrom(b.demo, n-k)
	if err != nil {
		return nil, nil, err
	}
	b.annealBeta()
	return sampledAgent, sampledDemo, nil
}

// SampleDemoOnly draws all n experiences from the demo pool. Used
// during pretraining, before any agent data exists.
func (b *Buffer) SampleDemoOnly(n int) ([]*Experience, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sampled, err := b.sampleFrom(b.demo, n)
	if err != nil {
		return nil, err
	}
	b.annealBeta()
	return sampled, nil
}

// UpdateErrors feeds freshly computed errors back as priorities, one
// list per pool, each in the order of that pool's most recent draw.
// Empty lists are no-ops. Errors are clipped to [ErrorMin, ErrorMax]
// and transformed via (|e|+eps)^alpha, so priorities stay positive.
func (b *Buffer) UpdateErrors(errorsAgent, errorsDemo []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(errorsAgent) > 0 {
		b.agent.SetLastPriorities(b.prioritiesFromErrors(errorsAgent))
	}
	if len(errorsDemo) > 0 {
		b.demo.SetLastPriorities(b.prioritiesFromErrors(errorsDemo))
	}
}

// Len returns the combined size of both pools.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agent.Len() + b.demo.Len()
}

// LenAgent returns the agent pool size.
func (b *Buffer) LenAgent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agent.Len()
}

// LenDemo returns the demo pool size.
func (b *Buffer) LenDemo() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.demo.Len()
}

// Stats returns a snapshot of pool sizes and priority masses.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		AgentSize:         b.agent.Len(),
		DemoSize:          b.demo.Len(),
		AgentPriorityMass: b.agent.TotalPriority(),
		DemoPriorityMass:  b.demo.TotalPriority(),
		Beta:              b.beta,
	}
}

func (b *Buffer) pool(origin Origin) *Pool {
	if origin == OriginDemo {
		return b.demo
	}
	return b.agent
}

func (b *Buffer) sampleFrom(pool *Pool, m int) ([]*Experience, error) {
	sampled, probs, minProb, err := pool.Sample(m)
	if err != nil {
		return nil, err
	}
	weights := b.weightsFromProbabilities(probs, minProb, pool.Len())
	for i, e := range sampled {
		e.Weight = weights[i]
	}
	return sampled, nil
}

func (b *Buffer) weightsFromProbabilities(probs []float64, poolMinProb float64, poolLen int) []float64 {
	weights := make([]float64, len(probs))
	if len(probs) == 0 {
		return weights
	}
	switch b.cfg.Normalization {
	case NormalizeByBatchMin:
		minProb := floats.Min(probs)
		for i, p := range probs {
			weights[i] = math.Pow(p/minProb, -b.beta)
		}
	case NormalizeByPoolMax:
		for i, p := range probs {
			weights[i] = math.Pow(p/poolMinProb, -b.beta)
		}
	default:
		for i, p := range probs {
			weights[i] = math.Pow(float64(poolLen)*p, -b.beta)
		}
	}
	return weights
}

func (b *Buffer) annealBeta() {
	b.beta = math.Min(1.0, b.beta+b.betaAdd)
}

func (b *Buffer) prioritiesFromErrors(errors []float64) []float64 {
	priorities := make([]float64, len(errors))
	for i, e := range errors {
		e = math.Abs(e)
		if e < b.cfg.ErrorMin {
			e = b.cfg.ErrorMin
		}
		if e > b.cfg.ErrorMax {
			e = b.cfg.ErrorMax
		}
		priorities[i] = math.Pow(e+b.cfg.Eps, b.cfg.Alpha)
	}
	return priorities
}
