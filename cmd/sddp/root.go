package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sddp",
	Short: "sddp trains policies for multistage stochastic programs",
	Long: `sddp builds a policy graph from a YAML model description and trains a
policy on it with stochastic dual dynamic programming.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every training iteration")
}
