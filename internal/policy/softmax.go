package policy

import (
	"math"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/ummavi/dqfd/internal/qfunc"
)

// Softmax samples actions from a Boltzmann distribution over the
// current Q-values. Higher temperature flattens the distribution.
type Softmax struct {
	Temperature float64

	src exprand.Source
}

// NewSoftmax creates a Boltzmann explorer. src may be nil, in which
// case the global source is used.
func NewSoftmax(temperature float64, src exprand.Source) *Softmax {
	return &Softmax{Temperature: temperature, src: src}
}

// SelectAction implements Explorer.
func (s *Softmax) SelectAction(step int, greedy func() int, values *qfunc.ActionValues) int {
	q := values.Values().RawRowView(0)

	// Shift by the max for numerical stability before exponentiating.
	maxQ := q[0]
	for _, v := range q[1:] {
		if v > maxQ {
			maxQ = v
		}
	}
	weights := make([]float64, len(q))
	for i, v := range q {
		weights[i] = math.Exp((v - maxQ) / s.Temperature)
	}

	idx, ok := sampleuv.NewWeighted(weights, s.src).Take()
	if !ok {
		return greedy()
	}
	return idx
}
