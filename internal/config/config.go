// Package config holds the learner's runtime configuration, loaded by
// the CLI through viper and validated once at startup.
package config

import (
	"fmt"
)

// Config holds all learner configuration
type Config struct {
	// Replay buffer
	Capacity    int     `mapstructure:"capacity"`
	NumSteps    int     `mapstructure:"num_steps"`
	Alpha       float64 `mapstructure:"alpha"`
	Beta0       float64 `mapstructure:"beta0"`
	BetaSteps   int     `mapstructure:"beta_steps"`
	PriorityEps float64 `mapstructure:"priority_eps"`
	ErrorMin    float64 `mapstructure:"error_min"`
	ErrorMax    float64 `mapstructure:"error_max"`

	// Update schedule
	MinibatchSize   int `mapstructure:"minibatch_size"`
	ReplayStartSize int `mapstructure:"replay_start_size"`
	UpdateInterval  int `mapstructure:"update_interval"`
	NTimesUpdate    int `mapstructure:"n_times_update"`

	// Loss combination
	Gamma                float64 `mapstructure:"gamma"`
	ClipDelta            bool    `mapstructure:"clip_delta"`
	DemoSupervisedMargin float64 `mapstructure:"demo_supervised_margin"`
	CoeffNStep           float64 `mapstructure:"coeff_nstep"`
	CoeffSupervised      float64 `mapstructure:"coeff_supervised"`
	BonusPriorityAgent   float64 `mapstructure:"bonus_priority_agent"`
	BonusPriorityDemo    float64 `mapstructure:"bonus_priority_demo"`
	AverageLossDecay     float64 `mapstructure:"average_loss_decay"`
	AverageQDecay        float64 `mapstructure:"average_q_decay"`

	// Target network
	NPretrainSteps       int     `mapstructure:"n_pretrain_steps"`
	TargetUpdateInterval int     `mapstructure:"target_update_interval"`
	TargetUpdateMethod   string  `mapstructure:"target_update_method"`
	SoftUpdateTau        float64 `mapstructure:"soft_update_tau"`

	// Optimizer
	LearningRate float64 `mapstructure:"learning_rate"`
	WeightDecay  float64 `mapstructure:"weight_decay"`

	// Exploration
	StartEpsilon      float64 `mapstructure:"start_epsilon"`
	EndEpsilon        float64 `mapstructure:"end_epsilon"`
	EpsilonDecaySteps int     `mapstructure:"epsilon_decay_steps"`

	// Environment and run length
	ChainLength     int `mapstructure:"chain_length"`
	MaxEpisodeSteps int `mapstructure:"max_episode_steps"`
	Episodes        int `mapstructure:"episodes"`
	DemoEpisodes    int `mapstructure:"demo_episodes"`

	// Service
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`
	Seed     int64  `mapstructure:"seed"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Capacity:    100000,
		NumSteps:    10,
		Alpha:       0.6,
		Beta0:       0.4,
		BetaSteps:   200000,
		PriorityEps: 0.01,
		ErrorMin:    0,
		ErrorMax:    1,

		MinibatchSize:   32,
		ReplayStartSize: 1000,
		UpdateInterval:  1,
		NTimesUpdate:    1,

		Gamma:                0.99,
		ClipDelta:            true,
		DemoSupervisedMargin: 0.8,
		CoeffNStep:           1.0,
		CoeffSupervised:      1.0,
		BonusPriorityAgent:   0.001,
		BonusPriorityDemo:    1.0,
		AverageLossDecay:     0.999,
		AverageQDecay:        0.999,

		NPretrainSteps:       500,
		TargetUpdateInterval: 100,
		TargetUpdateMethod:   "hard",
		SoftUpdateTau:        0.01,

		LearningRate: 0.01,
		WeightDecay:  1e-5,

		StartEpsilon:      1.0,
		EndEpsilon:        0.05,
		EpsilonDecaySteps: 5000,

		ChainLength:     10,
		MaxEpisodeSteps: 100,
		Episodes:        200,
		DemoEpisodes:    20,

		HTTPAddr: "", // empty disables the stats server
		LogLevel: "info",
		Seed:     1,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	if c.NumSteps <= 0 {
		return fmt.Errorf("num_steps must be positive")
	}
	if c.Alpha < 0 {
		return fmt.Errorf("alpha must be non-negative")
	}
	if c.Beta0 < 0 || c.Beta0 > 1 {
		return fmt.Errorf("beta0 must be in [0, 1]")
	}
	if c.PriorityEps <= 0 {
		return fmt.Errorf("priority_eps must be positive")
	}
	if c.ErrorMax < c.ErrorMin {
		return fmt.Errorf("error_max must be at least error_min")
	}
	if c.MinibatchSize <= 0 {
		return fmt.Errorf("minibatch_size must be positive")
	}
	if c.MinibatchSize > c.ReplayStartSize {
		return fmt.Errorf("minibatch_size must not exceed replay_start_size")
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update_interval must be positive")
	}
	if c.NTimesUpdate <= 0 {
		return fmt.Errorf("n_times_update must be positive")
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("gamma must be in [0, 1]")
	}
	if c.TargetUpdateMethod != "hard" && c.TargetUpdateMethod != "soft" {
		return fmt.Errorf("target_update_method must be hard or soft")
	}
	if c.TargetUpdateMethod == "soft" && (c.SoftUpdateTau <= 0 || c.SoftUpdateTau > 1) {
		return fmt.Errorf("soft_update_tau must be in (0, 1]")
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive")
	}
	if c.StartEpsilon < 0 || c.StartEpsilon > 1 || c.EndEpsilon < 0 || c.EndEpsilon > 1 {
		return fmt.Errorf("epsilon values must be in [0, 1]")
	}
	if c.ChainLength < 2 {
		return fmt.Errorf("chain_length must be at least 2")
	}
	if c.MaxEpisodeSteps <= 0 {
		return fmt.Errorf("max_episode_steps must be positive")
	}
	return nil
}
