package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"briefly/internal/core"
)

var (
	discoverCompanyID string
	discoverName       string
	discoverWebsite    string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find companies similar to an already-researched company, or an unresearched one by name",
	Long: `With --company-id, runs known-mode discovery against a previously
researched company's embedding. With --name (and optionally --website),
runs unknown-mode discovery: search-driven candidate generation,
on-demand research of a bounded number of candidates, and LLM-judged
similarity voting.`,
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := buildApp(ctx, cfgFile)
		if err != nil {
			return err
		}
		defer app.Close()

		var target core.Company
		switch {
		case discoverCompanyID != "":
			company, err := app.orch.GetCompany(ctx, discoverCompanyID)
			if err != nil {
				return fmt.Errorf("failed to load company: %w", err)
			}
			target = *company
		case discoverName != "":
			target = core.Company{Name: discoverName, Website: discoverWebsite}
		default:
			return fmt.Errorf("either --company-id or --name is required")
		}

		edges, err := app.sim.Discover(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to discover similar companies: %w", err)
		}
		return printJSON(edges)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverCompanyID, "company-id", "", "id of an already-researched company")
	discoverCmd.Flags().StringVar(&discoverName, "name", "", "company name, for discovery without a prior research job")
	discoverCmd.Flags().StringVar(&discoverWebsite, "website", "", "known homepage URL, paired with --name")
	rootCmd.AddCommand(discoverCmd)
}
