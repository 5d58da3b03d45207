// Package policy provides action-exploration strategies for the learner.
package policy

import "github.com/ummavi/dqfd/internal/qfunc"

// Explorer selects the action actually taken, given the current value
// estimates and a greedy-action callback.
type Explorer interface {
	SelectAction(step int, greedy func() int, values *qfunc.ActionValues) int
}
