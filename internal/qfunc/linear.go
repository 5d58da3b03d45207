package qfunc

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Linear is a linear action-value estimator, Q(s) = W*s + b. It exists
// as the reference collaborator for tests and the demo learner; any
// Estimator with the same contract can replace it.
type Linear struct {
	w *mat.Dense // (actions x stateDim)
	b *mat.Dense // (actions x 1)

	gw *mat.Dense
	gb *mat.Dense
}

// NewLinear creates a linear estimator with small random weights.
func NewLinear(stateDim, numActions int, rng *rand.Rand) *Linear {
	w := mat.NewDense(numActions, stateDim, nil)
	for i := 0; i < numActions; i++ {
		for j := 0; j < stateDim; j++ {
			w.Set(i, j, rng.NormFloat64()*0.01)
		}
	}
	return &Linear{
		w:  w,
		b:  mat.NewDense(numActions, 1, nil),
		gw: mat.NewDense(numActions, stateDim, nil),
		gb: mat.NewDense(numActions, 1, nil),
	}
}

// Clone returns an independent copy, used for the target snapshot.
func (l *Linear) Clone() *Linear {
	clone := &Linear{
		w:  mat.DenseCopyOf(l.w),
		b:  mat.DenseCopyOf(l.b),
		gw: mat.DenseCopyOf(l.gw),
		gb: mat.DenseCopyOf(l.gb),
	}
	return clone
}

// Forward implements Estimator. states is (batch x stateDim).
func (l *Linear) Forward(states *mat.Dense) *ActionValues {
	n, _ := states.Dims()
	actions, _ := l.w.Dims()

	var q mat.Dense
	q.Mul(states, l.w.T()) // (batch x actions)
	for i := 0; i < n; i++ {
		for a := 0; a < actions; a++ {
			q.Set(i, a, q.At(i, a)+l.b.At(a, 0))
		}
	}
	return NewActionValues(&q)
}

// Backward implements Estimator: accumulates dLoss/dW = gradᵀ·states
// and dLoss/db = column sums of grad.
func (l *Linear) Backward(states *mat.Dense, grad *mat.Dense) {
	var gw mat.Dense
	gw.Mul(grad.T(), states)
	l.gw.Add(l.gw, &gw)

	n, actions := grad.Dims()
	for a := 0; a < actions; a++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += grad.At(i, a)
		}
		l.gb.Set(a, 0, l.gb.At(a, 0)+sum)
	}
}

// Parameters implements Estimator.
func (l *Linear) Parameters() []*mat.Dense { return []*mat.Dense{l.w, l.b} }

// Gradients implements Estimator.
func (l *Linear) Gradients() []*mat.Dense { return []*mat.Dense{l.gw, l.gb} }

// ZeroGrad implements Estimator.
func (l *Linear) ZeroGrad() {
	l.gw.Zero()
	l.gb.Zero()
}

// SGD is a plain gradient-descent optimizer with L2 weight decay. The
// decay term is applied here, inside the optimizer, never summed into
// the training loss.
type SGD struct {
	LearningRate float64
	WeightDecay  float64
}

// Step implements Optimizer.
func (s *SGD) Step(model Estimator) {
	params := model.Parameters()
	grads := model.Gradients()
	for i, p := range params {
		r, c := p.Dims()
		g := grads[i]
		for row := 0; row < r; row++ {
			for col := 0; col < c; col++ {
				update := g.At(row, col) + s.WeightDecay*p.At(row, col)
				p.Set(row, col, p.At(row, col)-s.LearningRate*update)
			}
		}
	}
	model.ZeroGrad()
}
