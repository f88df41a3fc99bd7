package main

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sddp/policy"
	"sddp/train"
)

// simulate evaluates the trained policy out of training and logs summary
// statistics of the replication values.
func simulate(cmd *cobra.Command, cfg *Config, pg *policy.PolicyGraph[int], logger zerolog.Logger) error {
	options := []train.SimulateOption{}
	if cfg.Training.Seed > 0 {
		options = append(options, train.WithSimulationSeed(cfg.Training.Seed))
	}
	if cfg.Training.MaxDepth > 0 {
		options = append(options, train.WithSimulationDepth(cfg.Training.MaxDepth))
	}
	if cfg.Simulation.Parallelism > 0 {
		options = append(options, train.WithParallelism(cfg.Simulation.Parallelism))
	}

	replications, err := train.Simulate(cmd.Context(), pg, cfg.Simulation.Replications, options...)
	if err != nil {
		return fmt.Errorf("simulating policy: %w", err)
	}

	mean, stddev := summarize(replications)
	logger.Info().
		Int("replications", len(replications)).
		Float64("mean", mean).
		Float64("stddev", stddev).
		Msg("policy simulated")
	return nil
}

func summarize(replications []train.Replication[int]) (mean, stddev float64) {
	for _, r := range replications {
		mean += r.CumulativeValue
	}
	mean /= float64(len(replications))
	if len(replications) < 2 {
		return mean, 0
	}
	for _, r := range replications {
		stddev += (r.CumulativeValue - mean) * (r.CumulativeValue - mean)
	}
	return mean, math.Sqrt(stddev / float64(len(replications)-1))
}
