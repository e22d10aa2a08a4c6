package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "theodore",
	Short: "Theodore extracts structured company profiles from the public web.",
	Long: `Theodore runs the research pipeline described in its configuration:
link discovery, LLM-driven page selection, parallel fetching, and
multi-shard profile aggregation, then finds similar companies against
the resulting vector store.`,
}

// Execute adds all child commands to the root command and runs it. It is
// called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.theodore.yaml)")
}
