package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lmei/steamscout/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one classification pass",
		Long: `Seeds the ledger on first use, then works through one bounded batch
of fetched games whose classification is missing or stale. Safe to
interrupt: committed progress survives and the next invocation resumes.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	instance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	report, err := instance.Orchestrator().Run(cmd.Context(), pipeline.PassClassify)
	if err != nil {
		return fmt.Errorf("classification pass: %w", err)
	}
	return printReport(cmd, report)
}
