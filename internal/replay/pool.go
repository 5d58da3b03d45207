package replay

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
)

const initialLeaves = 64

// Pool is a weighted-sampling container over experiences. Sampling
// probability is proportional to each entry's priority, and append,
// sample and priority updates are all O(log n) through a pair of
// segment trees (cumulative sum and minimum) over the priority leaves.
//
// A pool with capacity > 0 is bounded: once full, appends overwrite the
// oldest entry. Capacity 0 means unbounded; the leaf arrays double as
// the pool grows. Pool is not safe for concurrent use; the owning
// Buffer serializes access.
type Pool struct {
	capacity int
	items    []*Experience
	next     int // ring cursor, meaningful only once a bounded pool is full

	leafCap int
	sum     []float64
	min     []float64

	maxPriority float64
	lastSampled []int
	rng         *rand.Rand
}

// NewPool creates a pool. capacity 0 means unbounded.
func NewPool(capacity int, rng *rand.Rand) *Pool {
	leaves := initialLeaves
	if capacity > 0 {
		leaves = nextPow2(capacity)
	}
	p := &Pool{
		capacity:    capacity,
		leafCap:     leaves,
		maxPriority: 1.0,
		rng:         rng,
	}
	p.resetTrees()
	return p
}

// Len returns the number of stored experiences.
func (p *Pool) Len() int { return len(p.items) }

// TotalPriority returns the pool's total priority mass.
func (p *Pool) TotalPriority() float64 { return p.sum[1] }

// MinProbability returns the sampling probability of the entry with the
// smallest priority, or 0 for an empty pool.
func (p *Pool) MinProbability() float64 {
	if len(p.items) == 0 || p.sum[1] == 0 {
		return 0
	}
	return p.min[1] / p.sum[1]
}

// Append stores an experience with the maximum priority seen so far, so
// fresh entries are sampled at least once before their priority is
// corrected by error feedback. Assigns an ID if the experience has none.
func (p *Pool) Append(e *Experience) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	var slot int
	if p.capacity > 0 && len(p.items) == p.capacity {
		slot = p.next
		p.items[slot] = e
		p.next = (p.next + 1) % p.capacity
	} else {
		slot = len(p.items)
		if slot == p.leafCap {
			p.grow()
		}
		p.items = append(p.items, e)
	}
	p.setPriority(slot, p.maxPriority)
}

// Sample draws m distinct experiences, probability proportional to
// priority. It returns the drawn experiences, their pre-draw sampling
// probabilities, and the pool-wide minimum probability. Entries removed
// from the running mass during the draw are restored afterwards, so the
// pool is unchanged apart from recording the draw for
// SetLastPriorities. Returns ErrUnderflow if m exceeds the pool size.
func (p *Pool) Sample(m int) ([]*Experience, []float64, float64, error) {
	if m > len(p.items) {
		return nil, nil, 0, fmt.Errorf("%w: requested %d, have %d", ErrUnderflow, m, len(p.items))
	}
	p.lastSampled = p.lastSampled[:0]
	if m == 0 {
		return nil, nil, 0, nil
	}

	total := p.sum[1]
	minProb := p.min[1] / total

	sampled := make([]*Experience, m)
	probs := make([]float64, m)
	saved := make([]float64, m)
	for i := 0; i < m; i++ {
		r := p.rng.Float64() * p.sum[1]
		slot := p.findPrefix(r)
		sampled[i] = p.items[slot]
		saved[i] = p.sum[p.leafCap+slot]
		probs[i] = saved[i] / total
		p.lastSampled = append(p.lastSampled, slot)
		p.updateSum(slot, 0) // without replacement within this draw
	}
	for i, slot := range p.lastSampled {
		p.updateSum(slot, saved[i])
	}
	return sampled, probs, minProb, nil
}

// SetLastPriorities assigns priorities to the most recent draw, in draw
// order. The count must match the last Sample exactly; a mismatch is a
// programming error and panics. Priorities must be strictly positive.
func (p *Pool) SetLastPriorities(priorities []float64) {
	if len(priorities) != len(p.lastSampled) {
		panic(fmt.Sprintf("replay: %d priorities for a draw of %d", len(priorities), len(p.lastSampled)))
	}
	for i, slot := range p.lastSampled {
		if priorities[i] <= 0 {
			panic(fmt.Sprintf("replay: non-positive priority %v", priorities[i]))
		}
		p.setPriority(slot, priorities[i])
	}
	p.lastSampled = p.lastSampled[:0]
}

// Tree helpers. Both trees are 1-indexed with leaves at [leafCap, 2*leafCap).

func (p *Pool) resetTrees() {
	p.sum = make([]float64, 2*p.leafCap)
	p.min = make([]float64, 2*p.leafCap)
	for i := range p.min {
		p.min[i] = math.Inf(1)
	}
}

func (p *Pool) setPriority(slot int, v float64) {
	p.updateSum(slot, v)
	pos := p.leafCap + slot
	p.min[pos] = v
	for pos >>= 1; pos >= 1; pos >>= 1 {
		p.min[pos] = math.Min(p.min[2*pos], p.min[2*pos+1])
	}
	if v > p.maxPriority {
		p.maxPriority = v
	}
}

func (p *Pool) updateSum(slot int, v float64) {
	pos := p.leafCap + slot
	p.sum[pos] = v
	for pos >>= 1; pos >= 1; pos >>= 1 {
		p.sum[pos] = p.sum[2*pos] + p.sum[2*pos+1]
	}
}

func (p *Pool) findPrefix(r float64) int {
	pos := 1
	for pos < p.leafCap {
		left := 2 * pos
		if r < p.sum[left] {
			pos = left
		} else {
			r -= p.sum[left]
			pos = left + 1
		}
	}
	slot := pos - p.leafCap
	// Guard against r landing past the last occupied leaf through
	// floating-point accumulation.
	if slot >= len(p.items) {
		slot = len(p.items) - 1
	}
	return slot
}

func (p *Pool) grow() {
	old := p.sum[p.leafCap : p.leafCap+len(p.items)]
	priorities := make([]float64, len(old))
	copy(priorities, old)

	p.leafCap *= 2
	p.resetTrees()
	for slot, v := range priorities {
		p.setPriority(slot, v)
	}
}

func nextPow2(n int) int {
	v := 1
	for v < n {
		v <<= 1
	}
	return v
}
