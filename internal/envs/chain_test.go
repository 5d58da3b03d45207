package envs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_ResetAndObservation(t *testing.T) {
	c := NewChain(4, 20)
	obs := c.Reset()

	require.Len(t, obs, 4)
	assert.Equal(t, []float64{1, 0, 0, 0}, obs)
}

func TestChain_ReachGoal(t *testing.T) {
	c := NewChain(4, 20)
	c.Reset()

	var (
		reward float64
		done   bool
		obs    []float64
	)
	for i := 0; i < 3; i++ {
		obs, reward, done = c.Step(1)
	}
	assert.True(t, done)
	assert.Equal(t, 1.0, reward)
	assert.Equal(t, []float64{0, 0, 0, 1}, obs)
}

func TestChain_StepCapEndsEpisodeWithoutReward(t *testing.T) {
	c := NewChain(4, 3)
	c.Reset()

	var (
		reward float64
		done   bool
	)
	for i := 0; i < 3; i++ {
		_, reward, done = c.Step(0) // push against the left wall
	}
	assert.True(t, done)
	assert.Equal(t, 0.0, reward)
}

func TestChain_ExpertEpisode(t *testing.T) {
	c := NewChain(4, 20)
	episode := c.ExpertEpisode()

	require.Len(t, episode, 3)
	for i, tr := range episode {
		last := i == len(episode)-1
		assert.Equal(t, 1, tr.Action)
		assert.Equal(t, last, tr.Terminal)
		assert.Equal(t, !last, tr.HasNextAction)
	}
	assert.Equal(t, 1.0, episode[len(episode)-1].Reward)
}
