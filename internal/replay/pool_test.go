package replay

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(capacity int, seed int64) *Pool {
	return NewPool(capacity, rand.New(rand.NewSource(seed)))
}

func singleStep(reward float64) *Experience {
	return &Experience{Steps: []Transition{{Reward: reward}}}
}

func TestPool_AppendAssignsID(t *testing.T) {
	pool := testPool(0, 1)
	e := singleStep(1.0)
	pool.Append(e)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, 1, pool.Len())
	assert.Equal(t, 1.0, pool.TotalPriority())
}

func TestPool_SampleUnderflow(t *testing.T) {
	pool := testPool(0, 1)
	pool.Append(singleStep(1.0))

	_, _, _, err := pool.Sample(2)
	require.ErrorIs(t, err, ErrUnderflow)
}

func TestPool_SampleWithoutReplacement(t *testing.T) {
	pool := testPool(0, 42)
	for i := 0; i < 8; i++ {
		pool.Append(singleStep(float64(i)))
	}

	sampled, probs, minProb, err := pool.Sample(8)
	require.NoError(t, err)
	require.Len(t, sampled, 8)
	require.Len(t, probs, 8)

	seen := make(map[string]bool)
	for _, e := range sampled {
		assert.False(t, seen[e.ID], "experience sampled twice in one draw")
		seen[e.ID] = true
	}

	// All entries share the append-time priority, so every probability
	// equals the pool minimum.
	for _, p := range probs {
		assert.InDelta(t, 1.0/8, p, 1e-12)
	}
	assert.InDelta(t, 1.0/8, minProb, 1e-12)

	// The draw must leave the priority mass untouched.
	assert.InDelta(t, 8.0, pool.TotalPriority(), 1e-9)
}

func TestPool_SetLastPriorities(t *testing.T) {
	pool := testPool(0, 7)
	for i := 0; i < 4; i++ {
		pool.Append(singleStep(0))
	}

	_, _, _, err := pool.Sample(4)
	require.NoError(t, err)

	pool.SetLastPriorities([]float64{0.5, 2.0, 1.0, 0.25})
	assert.InDelta(t, 3.75, pool.TotalPriority(), 1e-9)
	assert.InDelta(t, 0.25/3.75, pool.MinProbability(), 1e-9)
}

func TestPool_SetLastPrioritiesCountMismatchPanics(t *testing.T) {
	pool := testPool(0, 7)
	pool.Append(singleStep(0))
	_, _, _, err := pool.Sample(1)
	require.NoError(t, err)

	assert.Panics(t, func() {
		pool.SetLastPriorities([]float64{1.0, 1.0})
	})
}

func TestPool_SetLastPrioritiesRejectsNonPositive(t *testing.T) {
	pool := testPool(0, 7)
	pool.Append(singleStep(0))
	_, _, _, err := pool.Sample(1)
	require.NoError(t, err)

	assert.Panics(t, func() {
		pool.SetLastPriorities([]float64{0})
	})
}

func TestPool_BoundedEvictsOldest(t *testing.T) {
	pool := testPool(3, 1)
	for i := 0; i < 5; i++ {
		pool.Append(singleStep(float64(i)))
	}

	require.Equal(t, 3, pool.Len())

	// Only rewards 2, 3, 4 should remain after evicting the two oldest.
	sampled, _, _, err := pool.Sample(3)
	require.NoError(t, err)
	remaining := make(map[float64]bool)
	for _, e := range sampled {
		remaining[e.First().Reward] = true
	}
	assert.Equal(t, map[float64]bool{2: true, 3: true, 4: true}, remaining)
}

func TestPool_GrowsPastInitialLeaves(t *testing.T) {
	pool := testPool(0, 3)
	for i := 0; i < initialLeaves*2+5; i++ {
		pool.Append(singleStep(float64(i)))
	}

	assert.Equal(t, initialLeaves*2+5, pool.Len())
	assert.InDelta(t, float64(initialLeaves*2+5), pool.TotalPriority(), 1e-9)
}

func TestPool_ProportionalSamplingDistribution(t *testing.T) {
	pool := testPool(0, 123)
	priorities := []float64{0.1, 1.0, 2.4}
	for i, p := range priorities {
		pool.Append(singleStep(float64(i)))
		pool.setPriority(i, p)
	}

	iterations := 4000
	counts := make([]int, len(priorities))
	for i := 0; i < iterations; i++ {
		sampled, _, _, err := pool.Sample(1)
		require.NoError(t, err)
		counts[int(sampled[0].First().Reward)]++
	}

	total := 0.1 + 1.0 + 2.4
	tolerance := float64(iterations) * 0.05
	for i, p := range priorities {
		expected := float64(iterations) * p / total
		assert.InDeltaf(t, expected, float64(counts[i]), tolerance,
			"unexpected sampling frequency for slot %d", i)
	}
}
