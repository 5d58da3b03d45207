package replay

// Origin selects which of the two pools an experience belongs to.
type Origin int

const (
	// OriginAgent marks self-play data stored in the bounded pool.
	OriginAgent Origin = iota
	// OriginDemo marks expert demonstration data stored persistently.
	OriginDemo
)

func (o Origin) String() string {
	switch o {
	case OriginAgent:
		return "agent"
	case OriginDemo:
		return "demo"
	default:
		return "unknown"
	}
}

// Transition is a single environment step. It must not be mutated after
// being appended to the buffer.
type Transition struct {
	State         []float64
	Action        int
	Reward        float64
	NextState     []float64
	NextAction    int
	HasNextAction bool
	Terminal      bool

	// Extra carries auxiliary per-step scalars (eligibility traces,
	// environment-specific diagnostics) without widening the struct.
	Extra map[string]float64
}

// Experience is an ordered run of 1..N consecutive transitions from a
// single episode, oldest first.
type Experience struct {
	ID    string
	Steps []Transition

	// Weight is the importance-sampling correction attached at sample
	// time. It is transient: re-sampling the same experience
	// overwrites it, and it never influences the stored priority.
	Weight float64
}

// Len returns the number of transitions in the window.
func (e *Experience) Len() int { return len(e.Steps) }

// First returns the oldest transition in the window.
func (e *Experience) First() *Transition { return &e.Steps[0] }

// Last returns the newest transition in the window.
func (e *Experience) Last() *Transition { return &e.Steps[len(e.Steps)-1] }
