// Package envs holds the small in-process environments used by the
// demo learner and the end-to-end tests.
package envs

import "github.com/ummavi/dqfd/internal/replay"

// Environment is a minimal episodic environment with discrete actions
// and vector observations.
type Environment interface {
	Reset() []float64
	Step(action int) (obs []float64, reward float64, done bool)
	NumActions() int
	ObsDim() int
}

// Chain is a deterministic 1-D corridor: the agent starts at the left
// end and earns a reward only by reaching the right end. Action 0 moves
// left, action 1 moves right. Episodes cap at MaxSteps.
type Chain struct {
	Length   int
	MaxSteps int

	pos   int
	steps int
}

// NewChain creates a corridor of the given length.
func NewChain(length, maxSteps int) *Chain {
	return &Chain{Length: length, MaxSteps: maxSteps}
}

// NumActions implements Environment.
func (c *Chain) NumActions() int { return 2 }

// ObsDim implements Environment.
func (c *Chain) ObsDim() int { return c.Length }

// Reset implements Environment.
func (c *Chain) Reset() []float64 {
	c.pos = 0
	c.steps = 0
	return c.observe()
}

// Step implements Environment.
func (c *Chain) Step(action int) ([]float64, float64, bool) {
	if action == 1 {
		if c.pos < c.Length-1 {
			c.pos++
		}
	} else if c.pos > 0 {
		c.pos--
	}
	c.steps++

	reward := 0.0
	done := false
	if c.pos == c.Length-1 {
		reward = 1.0
		done = true
	} else if c.steps >= c.MaxSteps {
		done = true
	}
	return c.observe(), reward, done
}

func (c *Chain) observe() []float64 {
	obs := make([]float64, c.Length)
	obs[c.pos] = 1
	return obs
}

// ExpertEpisode returns one optimal demonstration: walk right until the
// goal. The final transition is terminal and carries no next action.
func (c *Chain) ExpertEpisode() []replay.Transition {
	obs := c.Reset()
	var episode []replay.Transition
	for {
		next, reward, done := c.Step(1)
		tr := replay.Transition{
			State:     obs,
			Action:    1,
			Reward:    reward,
			NextState: next,
			Terminal:  done,
		}
		if !done {
			tr.NextAction = 1
			tr.HasNextAction = true
		}
		episode = append(episode, tr)
		if done {
			return episode
		}
		obs = next
	}
}

// ExpertEpisodes returns n identical optimal demonstrations.
func (c *Chain) ExpertEpisodes(n int) [][]replay.Transition {
	episodes := make([][]replay.Transition, n)
	for i := range episodes {
		episodes[i] = c.ExpertEpisode()
	}
	return episodes
}
