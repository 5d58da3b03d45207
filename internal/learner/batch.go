package learner

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ummavi/dqfd/internal/replay"
)

// Phi maps a raw observation to a model-ready feature vector. It must
// be pure; it is applied uniformly wherever states are batched.
type Phi func([]float64) []float64

// Batch is the fixed-shape view over a heterogeneous list of
// variable-length experience windows.
type Batch struct {
	Size    int
	States  *mat.Dense
	Actions []int

	// 1-step quantities come from the first transition of each window.
	Reward1Step     []float64
	NextStates1Step *mat.Dense

	// n-step quantities span the full window: the discounted reward sum
	// and the last transition's next state.
	RewardNStep     []float64
	NextStatesNStep *mat.Dense

	// Terminal[i] is 1 if any transition in window i is terminal.
	Terminal []float64
	// Discount[i] is gamma^len(window_i), the bootstrap discount for
	// the n-step target. Windows vary in length, so this is per sample.
	Discount []float64

	Weights []float64

	// NextActions is present only when every window's last transition
	// carries a defined next action; otherwise nil for the whole batch.
	NextActions []int
}

// AssembleBatch vectorizes experiences of mixed window lengths 1..N.
// phi may be nil for identity preprocessing.
func AssembleBatch(experiences []*replay.Experience, gamma float64, phi Phi) *Batch {
	if phi == nil {
		phi = func(obs []float64) []float64 { return obs }
	}
	n := len(experiences)
	stateDim := len(phi(experiences[0].First().State))

	b := &Batch{
		Size:            n,
		States:          mat.NewDense(n, stateDim, nil),
		Actions:         make([]int, n),
		Reward1Step:     make([]float64, n),
		NextStates1Step: mat.NewDense(n, stateDim, nil),
		RewardNStep:     make([]float64, n),
		NextStatesNStep: mat.NewDense(n, stateDim, nil),
		Terminal:        make([]float64, n),
		Discount:        make([]float64, n),
		Weights:         make([]float64, n),
	}

	allNextActions := true
	nextActions := make([]int, n)

	for i, exp := range experiences {
		first := exp.First()
		last := exp.Last()

		b.States.SetRow(i, phi(first.State))
		b.Actions[i] = first.Action
		b.Reward1Step[i] = first.Reward
		setRowOrZero(b.NextStates1Step, i, first.NextState, phi)
		setRowOrZero(b.NextStatesNStep, i, last.NextState, phi)
		b.Weights[i] = exp.Weight

		sum := 0.0
		g := 1.0
		terminal := false
		for _, step := range exp.Steps {
			sum += g * step.Reward
			g *= gamma
			terminal = terminal || step.Terminal
		}
		b.RewardNStep[i] = sum
		b.Discount[i] = g // gamma^len after the loop
		if terminal {
			b.Terminal[i] = 1
		}

		if last.HasNextAction {
			nextActions[i] = last.NextAction
		} else {
			allNextActions = false
		}
	}

	if allNextActions {
		b.NextActions = nextActions
	}
	return b
}

// setRowOrZero writes phi(state) into row i, or leaves the zero row for
// a nil next state (terminal transitions); targets mask these rows out
// through the terminal flag.
func setRowOrZero(dst *mat.Dense, i int, state []float64, phi Phi) {
	if state == nil {
		return
	}
	dst.SetRow(i, phi(state))
}
