package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job id>",
	Short: "Print a ResearchJob's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := buildApp(ctx, cfgFile)
		if err != nil {
			return err
		}
		defer app.Close()

		job, err := app.orch.Status(args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch status: %w", err)
		}
		return printJSON(job)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
