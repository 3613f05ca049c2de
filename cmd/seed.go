package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Fetch the full app list and insert unknown ids into the ledger",
		Long: `Fetches the complete AppID universe from the Steam listing endpoint
and inserts every id the ledger does not already track. Existing rows are
left untouched, so seeding is safe to repeat.`,
		RunE: runSeedCommand,
	}
}

func runSeedCommand(cmd *cobra.Command, _ []string) error {
	instance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	added, err := instance.Orchestrator().Seed(cmd.Context())
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "added %d new ids\n", added)
	return nil
}
