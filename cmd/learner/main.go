package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ummavi/dqfd/internal/config"
	"github.com/ummavi/dqfd/internal/envs"
	"github.com/ummavi/dqfd/internal/httpapi"
	"github.com/ummavi/dqfd/internal/learner"
	"github.com/ummavi/dqfd/internal/metrics"
	"github.com/ummavi/dqfd/internal/policy"
	"github.com/ummavi/dqfd/internal/qfunc"
	"github.com/ummavi/dqfd/internal/replay"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "learner",
	Short: "DQfD learner",
	Long: `Deep Q-learning from Demonstrations learner.

The learner pretrains a Q-function on expert demonstrations, then
trains it further from its own experience on a chain environment,
mixing demonstration and self-play batches through a dual prioritized
replay buffer.`,
	RunE: runLearner,
}

func init() {
	cfg = config.Default()

	// Replay buffer
	rootCmd.Flags().IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "Agent replay pool capacity")
	rootCmd.Flags().IntVar(&cfg.NumSteps, "num-steps", cfg.NumSteps, "Transition window length for n-step returns")
	rootCmd.Flags().Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "Priority exponent")
	rootCmd.Flags().Float64Var(&cfg.Beta0, "beta0", cfg.Beta0, "Initial importance-weight exponent")
	rootCmd.Flags().IntVar(&cfg.BetaSteps, "beta-steps", cfg.BetaSteps, "Samples over which beta anneals to 1")
	rootCmd.Flags().Float64Var(&cfg.PriorityEps, "priority-eps", cfg.PriorityEps, "Additive priority floor")

	// Update schedule
	rootCmd.Flags().IntVar(&cfg.MinibatchSize, "minibatch-size", cfg.MinibatchSize, "Experiences per update")
	rootCmd.Flags().IntVar(&cfg.ReplayStartSize, "replay-start-size", cfg.ReplayStartSize, "Buffer size before updates begin")
	rootCmd.Flags().IntVar(&cfg.UpdateInterval, "update-interval", cfg.UpdateInterval, "Steps between updates")
	rootCmd.Flags().IntVar(&cfg.NTimesUpdate, "n-times-update", cfg.NTimesUpdate, "Updates per eligible step")

	// Losses
	rootCmd.Flags().Float64Var(&cfg.Gamma, "gamma", cfg.Gamma, "Discount factor")
	rootCmd.Flags().Float64Var(&cfg.DemoSupervisedMargin, "demo-supervised-margin", cfg.DemoSupervisedMargin, "Large-margin loss margin")
	rootCmd.Flags().Float64Var(&cfg.CoeffNStep, "coeff-nstep", cfg.CoeffNStep, "n-step loss coefficient")
	rootCmd.Flags().Float64Var(&cfg.CoeffSupervised, "coeff-supervised", cfg.CoeffSupervised, "Supervised loss coefficient")

	// Target network and pretraining
	rootCmd.Flags().IntVar(&cfg.NPretrainSteps, "n-pretrain-steps", cfg.NPretrainSteps, "Demonstration-only updates before interaction")
	rootCmd.Flags().IntVar(&cfg.TargetUpdateInterval, "target-update-interval", cfg.TargetUpdateInterval, "Steps between target syncs")
	rootCmd.Flags().StringVar(&cfg.TargetUpdateMethod, "target-update-method", cfg.TargetUpdateMethod, "Target sync method (hard, soft)")
	rootCmd.Flags().Float64Var(&cfg.SoftUpdateTau, "soft-update-tau", cfg.SoftUpdateTau, "Soft sync interpolation factor")

	// Optimizer and exploration
	rootCmd.Flags().Float64Var(&cfg.LearningRate, "learning-rate", cfg.LearningRate, "SGD learning rate")
	rootCmd.Flags().Float64Var(&cfg.WeightDecay, "weight-decay", cfg.WeightDecay, "L2 weight decay")
	rootCmd.Flags().Float64Var(&cfg.StartEpsilon, "start-epsilon", cfg.StartEpsilon, "Initial exploration rate")
	rootCmd.Flags().Float64Var(&cfg.EndEpsilon, "end-epsilon", cfg.EndEpsilon, "Final exploration rate")
	rootCmd.Flags().IntVar(&cfg.EpsilonDecaySteps, "epsilon-decay-steps", cfg.EpsilonDecaySteps, "Steps over which epsilon decays")

	// Run shape
	rootCmd.Flags().IntVar(&cfg.ChainLength, "chain-length", cfg.ChainLength, "Corridor length of the chain environment")
	rootCmd.Flags().IntVar(&cfg.MaxEpisodeSteps, "max-episode-steps", cfg.MaxEpisodeSteps, "Step cap per episode")
	rootCmd.Flags().IntVar(&cfg.Episodes, "episodes", cfg.Episodes, "Self-play episodes to run")
	rootCmd.Flags().IntVar(&cfg.DemoEpisodes, "demo-episodes", cfg.DemoEpisodes, "Expert episodes to preload")

	// Service
	rootCmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "Stats HTTP listen address (empty disables)")
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")

	// Bind flags to viper for environment variable support
	viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("DQFD")
	viper.AutomaticEnv()
}

func runLearner(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	replayCfg := replay.Config{
		Capacity:  cfg.Capacity,
		NumSteps:  cfg.NumSteps,
		Alpha:     cfg.Alpha,
		Beta0:     cfg.Beta0,
		BetaSteps: cfg.BetaSteps,
		Eps:       cfg.PriorityEps,
		ErrorMin:  cfg.ErrorMin,
		ErrorMax:  cfg.ErrorMax,
		Seed:      cfg.Seed,
	}
	buffer := replay.NewBuffer(replayCfg, logger)

	env := envs.NewChain(cfg.ChainLength, cfg.MaxEpisodeSteps)
	rng := rand.New(rand.NewSource(cfg.Seed))
	model := qfunc.NewLinear(env.ObsDim(), env.NumActions(), rng)
	target := model.Clone()
	optimizer := &qfunc.SGD{LearningRate: cfg.LearningRate, WeightDecay: cfg.WeightDecay}

	orch := learner.NewOrchestrator(buffer, model, target, optimizer, learner.OrchestratorConfig{
		Gamma:                cfg.Gamma,
		ClipDelta:            cfg.ClipDelta,
		DemoSupervisedMargin: cfg.DemoSupervisedMargin,
		CoeffNStep:           cfg.CoeffNStep,
		CoeffSupervised:      cfg.CoeffSupervised,
		BonusPriorityAgent:   cfg.BonusPriorityAgent,
		BonusPriorityDemo:    cfg.BonusPriorityDemo,
		Accumulator:          learner.AccumulatorMean,
		AverageLossDecay:     cfg.AverageLossDecay,
	}, logger)

	collector := metrics.NewCollector(logger)
	scheduler, err := learner.NewScheduler(buffer, orch.Update, cfg.MinibatchSize, cfg.ReplayStartSize, cfg.UpdateInterval, cfg.NTimesUpdate, collector)
	if err != nil {
		return err
	}

	explorer := policy.NewEpsilonGreedy(cfg.StartEpsilon, cfg.EndEpsilon, cfg.EpsilonDecaySteps, rng)
	agent := learner.NewAgent(learner.AgentConfig{
		NPretrainSteps:       cfg.NPretrainSteps,
		TargetUpdateInterval: cfg.TargetUpdateInterval,
		TargetUpdateMethod:   learner.TargetUpdateMethod(cfg.TargetUpdateMethod),
		SoftUpdateTau:        cfg.SoftUpdateTau,
		AverageQDecay:        cfg.AverageQDecay,
	}, buffer, scheduler, orch, model, explorer, collector, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	srv := startStatsServer(buffer, agent, logger)
	if srv != nil {
		defer stopStatsServer(srv, logger)
	}

	agent.LoadDemonstrations(env.ExpertEpisodes(cfg.DemoEpisodes))
	logger.Info().Int("steps", cfg.NPretrainSteps).Msg("pretraining from demonstrations")
	if err := agent.Pretrain(); err != nil {
		return fmt.Errorf("pretraining: %w", err)
	}

	return runEpisodes(ctx, agent, env, collector, logger)
}

func runEpisodes(ctx context.Context, agent *learner.Agent, env envs.Environment, collector *metrics.Collector, logger zerolog.Logger) error {
	for episode := 0; episode < cfg.Episodes; episode++ {
		if ctx.Err() != nil {
			logger.Info().Int("episodes_run", episode).Msg("stopped early")
			return nil
		}

		obs := env.Reset()
		reward := 0.0
		episodeReturn := 0.0
		steps := 0
		for {
			action, err := agent.ActAndTrain(obs, reward)
			if err != nil {
				return fmt.Errorf("episode %d: %w", episode, err)
			}
			next, r, done := env.Step(action)
			obs, reward = next, r
			episodeReturn += r
			steps++
			if done {
				if err := agent.StopEpisodeAndTrain(obs, reward); err != nil {
					return fmt.Errorf("episode %d: %w", episode, err)
				}
				break
			}
		}
		collector.EpisodeFinished(0, steps, episodeReturn)
		if (episode+1)%10 == 0 {
			logger.Info().
				Int("episode", episode+1).
				Int("step", agent.Step()).
				Float64("average_q", agent.AverageQ()).
				Float64("average_loss", agent.AverageLoss()).
				Msg("training progress")
		}
	}
	logger.Info().Int("episodes", cfg.Episodes).Msg("training finished")
	return nil
}

func startStatsServer(buffer *replay.Buffer, agent *learner.Agent, logger zerolog.Logger) *http.Server {
	if cfg.HTTPAddr == "" {
		return nil
	}
	h := httpapi.NewServer(buffer, agent, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("stats HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server failed")
		}
	}()
	return srv
}

func stopStatsServer(srv *http.Server, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
