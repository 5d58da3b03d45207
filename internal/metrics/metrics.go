// Package metrics reports training events through structured logs.
// Skipped updates and other non-error outcomes surface here and nowhere
// else.
package metrics

import "github.com/rs/zerolog"

// Collector emits training metrics for learner operations.
type Collector struct {
	logger zerolog.Logger
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// UpdateSkipped records a gated-out training step; this is a normal
// outcome, not an error.
func (c *Collector) UpdateSkipped(step int, reason string) {
	c.logger.Debug().
		Str("metric", "update_skipped").
		Int("step", step).
		Str("reason", reason).
		Msg("Update skipped")
}

// UpdateCompleted records the training updates fired on one step.
func (c *Collector) UpdateCompleted(step, times int) {
	c.logger.Debug().
		Str("metric", "update_completed").
		Int("step", step).
		Int("times", times).
		Msg("Update completed")
}

// PretrainStep records one demonstration-only pretraining update.
func (c *Collector) PretrainStep(step int, averageLoss float64) {
	c.logger.Info().
		Str("metric", "pretrain_step").
		Int("step", step).
		Float64("average_loss", averageLoss).
		Msg("Pretrain step")
}

// EpisodeFinished records the end of an environment episode.
func (c *Collector) EpisodeFinished(envID, steps int, episodeReturn float64) {
	c.logger.Info().
		Str("metric", "episode_finished").
		Int("env_id", envID).
		Int("steps", steps).
		Float64("return", episodeReturn).
		Msg("Episode finished")
}

// TargetSynced records a target-network synchronization.
func (c *Collector) TargetSynced(step int) {
	c.logger.Debug().
		Str("metric", "target_synced").
		Int("step", step).
		Msg("Target network synchronized")
}
