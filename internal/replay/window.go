package replay

// windowAggregator maintains, per environment id, a sliding window of
// at most numSteps consecutive transitions, and decides which
// multi-length experience windows get emitted as the episode advances.
// Windows are owned exclusively by the aggregator; emitted experiences
// are copies.
type windowAggregator struct {
	numSteps int
	windows  map[int][]Transition
}

func newWindowAggregator(numSteps int) *windowAggregator {
	return &windowAggregator{
		numSteps: numSteps,
		windows:  make(map[int][]Transition),
	}
}

// Append feeds one transition into the environment's window and returns
// the windows to emit, oldest-first within each.
//
// Non-terminal: the window slides (oldest dropped beyond numSteps) and
// a full-length copy is emitted each step once warmed up. Terminal: the
// window and every suffix down to length 1 are emitted, then the window
// is cleared.
func (w *windowAggregator) Append(envID int, t Transition) [][]Transition {
	win := append(w.windows[envID], t)
	if len(win) > w.numSteps {
		win = win[1:]
	}

	var out [][]Transition
	if t.Terminal {
		for len(win) > 0 {
			out = append(out, copyWindow(win))
			win = win[1:]
		}
		delete(w.windows, envID)
		return out
	}

	if len(win) == w.numSteps {
		out = append(out, copyWindow(win))
	}
	w.windows[envID] = win
	return out
}

// StopCurrentEpisode flushes the window of an episode abandoned without
// a terminal transition (external reset). A window shorter than
// numSteps is emitted once as-is; then the oldest element is dropped
// exactly once before emitting the remaining suffixes, because a
// full-length window has already been emitted by the sliding path and
// re-emitting it whole would double-count its head transition.
func (w *windowAggregator) StopCurrentEpisode(envID int) [][]Transition {
	win := w.windows[envID]

	var out [][]Transition
	if len(win) > 0 && len(win) < w.numSteps {
		out = append(out, copyWindow(win))
	}
	if len(win) > 0 && len(win) <= w.numSteps {
		win = win[1:]
	}
	for len(win) > 0 {
		out = append(out, copyWindow(win))
		win = win[1:]
	}
	delete(w.windows, envID)
	return out
}

// windowLen reports the current window size for an environment.
func (w *windowAggregator) windowLen(envID int) int {
	return len(w.windows[envID])
}

func copyWindow(win []Transition) []Transition {
	out := make([]Transition, len(win))
	copy(out, win)
	return out
}
