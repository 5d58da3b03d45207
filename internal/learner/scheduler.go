package learner

import (
	"fmt"

	"github.com/ummavi/dqfd/internal/metrics"
	"github.com/ummavi/dqfd/internal/replay"
)

// UpdateFunc consumes one freshly drawn sample, agent-origin and
// demo-origin experiences kept separate.
type UpdateFunc func(agent, demo []*replay.Experience) error

// Scheduler decides when training updates fire. During steady-state
// play each step is gated on the buffer holding at least
// replayStartSize experiences and on the step counter hitting the
// update interval; a gated-out step is a skip, never an error.
// Pretraining bypasses both gates and draws demo-only batches.
type Scheduler struct {
	buffer          *replay.Buffer
	update          UpdateFunc
	batchSize       int
	replayStartSize int
	updateInterval  int
	nTimesUpdate    int
	collector       *metrics.Collector
}

// NewScheduler validates the schedule configuration once, fatally: a
// batch size above the replay start threshold could never be satisfied
// on the first eligible step.
func NewScheduler(buffer *replay.Buffer, update UpdateFunc, batchSize, replayStartSize, updateInterval, nTimesUpdate int, collector *metrics.Collector) (*Scheduler, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("learner: batch size must be positive, got %d", batchSize)
	}
	if batchSize > replayStartSize {
		return nil, fmt.Errorf("learner: batch size %d exceeds replay start size %d", batchSize, replayStartSize)
	}
	if updateInterval <= 0 {
		return nil, fmt.Errorf("learner: update interval must be positive, got %d", updateInterval)
	}
	if nTimesUpdate <= 0 {
		return nil, fmt.Errorf("learner: n_times_update must be positive, got %d", nTimesUpdate)
	}
	return &Scheduler{
		buffer:          buffer,
		update:          update,
		batchSize:       batchSize,
		replayStartSize: replayStartSize,
		updateInterval:  updateInterval,
		nTimesUpdate:    nTimesUpdate,
		collector:       collector,
	}, nil
}

// UpdateIfNecessary fires nTimesUpdate consecutive updates when the
// gates pass, each drawing a fresh sample.
func (s *Scheduler) UpdateIfNecessary(step int) error {
	if s.buffer.Len() < s.replayStartSize {
		s.collector.UpdateSkipped(step, "buffer below replay start size")
		return nil
	}
	if step%s.updateInterval != 0 {
		s.collector.UpdateSkipped(step, "off update interval")
		return nil
	}
	for i := 0; i < s.nTimesUpdate; i++ {
		agent, demo, err := s.buffer.Sample(s.batchSize)
		if err != nil {
			return err
		}
		if err := s.update(agent, demo); err != nil {
			return err
		}
	}
	s.collector.UpdateCompleted(step, s.nTimesUpdate)
	return nil
}

// PretrainStep performs a single update from a demo-only batch,
// independent of the interval and threshold gates.
func (s *Scheduler) PretrainStep() error {
	demo, err := s.buffer.SampleDemoOnly(s.batchSize)
	if err != nil {
		return err
	}
	return s.update(nil, demo)
}
