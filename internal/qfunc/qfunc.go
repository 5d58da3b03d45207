// Package qfunc defines the value-estimator and optimizer boundary the
// training pipeline drives, plus a linear reference estimator. The
// pipeline only ever hands an estimator a batched state matrix and a
// matrix of per-action loss gradients; how gradients flow inside the
// estimator is its own business.
package qfunc

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ActionValues wraps a batch of per-action value estimates, one row per
// state.
type ActionValues struct {
	q *mat.Dense
}

// NewActionValues wraps a (batch x actions) value matrix.
func NewActionValues(q *mat.Dense) *ActionValues {
	return &ActionValues{q: q}
}

// Values returns the underlying (batch x actions) matrix.
func (av *ActionValues) Values() *mat.Dense { return av.q }

// Rows returns the batch size.
func (av *ActionValues) Rows() int {
	r, _ := av.q.Dims()
	return r
}

// NumActions returns the size of the action space.
func (av *ActionValues) NumActions() int {
	_, c := av.q.Dims()
	return c
}

// Greedy returns the argmax action per row.
func (av *ActionValues) Greedy() []int {
	r, _ := av.q.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		out[i] = floats.MaxIdx(av.q.RawRowView(i))
	}
	return out
}

// Max returns the maximum value per row.
func (av *ActionValues) Max() []float64 {
	r, _ := av.q.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = floats.Max(av.q.RawRowView(i))
	}
	return out
}

// Evaluate returns the value of the chosen action per row.
func (av *ActionValues) Evaluate(actions []int) []float64 {
	out := make([]float64, len(actions))
	for i, a := range actions {
		out[i] = av.q.At(i, a)
	}
	return out
}

// Estimator is the external value-function collaborator. Forward runs a
// batched forward pass; Backward accumulates parameter gradients for a
// matrix of dLoss/dQ values shaped like the forward output.
type Estimator interface {
	Forward(states *mat.Dense) *ActionValues
	Backward(states *mat.Dense, grad *mat.Dense)

	// Parameters and Gradients expose aligned views for the optimizer
	// and for target-network synchronization. ZeroGrad clears the
	// accumulated gradients after an optimizer step.
	Parameters() []*mat.Dense
	Gradients() []*mat.Dense
	ZeroGrad()
}

// Optimizer applies accumulated gradients to an estimator's parameters.
type Optimizer interface {
	Step(model Estimator)
}

// SyncTarget copies the online estimator's parameters into the target
// estimator. tau 1 is a hard sync; tau in (0, 1) is an exponential soft
// update target = (1-tau)*target + tau*online.
func SyncTarget(target, online Estimator, tau float64) {
	tp := target.Parameters()
	op := online.Parameters()
	for i := range tp {
		if tau >= 1 {
			tp[i].Copy(op[i])
			continue
		}
		tp[i].Scale(1-tau, tp[i])
		var scaled mat.Dense
		scaled.Scale(tau, op[i])
		tp[i].Add(tp[i], &scaled)
	}
}
