package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job id>",
	Short: "Request cooperative cancellation of a running ResearchJob",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := buildApp(ctx, cfgFile)
		if err != nil {
			return err
		}
		defer app.Close()

		state, err := app.orch.Cancel(args[0])
		if err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}
		fmt.Println(state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
