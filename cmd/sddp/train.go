package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sddp/train"
)

// trainCmd trains a policy from a YAML model description and writes the
// training log, plus an optional out-of-training simulation, to a run
// directory.
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a policy on the configured model",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")

		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger().Level(zerolog.InfoLevel)
		if verbose {
			logger = logger.Level(zerolog.DebugLevel)
		}

		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		pg, err := cfg.buildPolicy()
		if err != nil {
			return fmt.Errorf("building policy graph: %w", err)
		}
		options, err := cfg.trainOptions()
		if err != nil {
			return err
		}
		options = append(options, train.WithLogger[int](logger))

		result, err := train.Train(cmd.Context(), pg, options...)
		if err != nil {
			return fmt.Errorf("training: %w", err)
		}
		last := result.Log[len(result.Log)-1]
		logger.Info().
			Str("status", string(result.Status)).
			Int("iterations", len(result.Log)).
			Float64("bound", last.Bound).
			Msg("policy trained")

		if dir := cfg.Output.Dir; dir != "" {
			writer, err := train.NewWriter(dir)
			if err != nil {
				return err
			}
			if err := writer.WriteLog(result.Log); err != nil {
				return err
			}
			logger.Info().Str("dir", writer.Dir()).Msg("training log written")
		}

		if cfg.Simulation.Replications > 0 {
			if err := simulate(cmd, cfg, pg, logger); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringP("config", "c", "config.yaml", "Path to the YAML model description")
}
