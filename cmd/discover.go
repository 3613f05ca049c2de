package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lmei/steamscout/internal/catalog"
	"github.com/lmei/steamscout/internal/pipeline"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery pass over never-fetched ids",
		Long: `Works through one batch of ids that have never been fetched, records
each app's product type in the products document, and marks games as
eligible for classification.`,
		RunE: runDiscoverCommand,
	}
}

func runDiscoverCommand(cmd *cobra.Command, _ []string) error {
	instance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	report, err := instance.Orchestrator().Run(cmd.Context(), pipeline.PassDiscovery)
	if err != nil {
		return fmt.Errorf("discovery pass: %w", err)
	}
	return printReport(cmd, report)
}

func printReport(cmd *cobra.Command, report catalog.Report) error {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
