package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	researchWebsite string
	researchWait    bool
)

var researchCmd = &cobra.Command{
	Use:   "research <company name>",
	Short: "Start researching a company, returning its job id",
	Long: `Starts (or idempotently reuses) a ResearchJob for the given company
name and optional website, driving it through link discovery, page
selection, fetching, and aggregation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := buildApp(ctx, cfgFile)
		if err != nil {
			return err
		}
		defer app.Close()

		jobID, err := app.orch.Start(ctx, args[0], researchWebsite)
		if err != nil {
			return fmt.Errorf("failed to start research: %w", err)
		}

		if !researchWait {
			fmt.Println(jobID)
			return nil
		}

		job, err := app.orch.Await(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to await research: %w", err)
		}
		return printJSON(job)
	},
}

func init() {
	researchCmd.Flags().StringVar(&researchWebsite, "website", "", "known homepage URL, if already known")
	researchCmd.Flags().BoolVar(&researchWait, "wait", false, "block until the job reaches a terminal state")
	rootCmd.AddCommand(researchCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
