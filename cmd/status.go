package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// statusReport is what the status command prints.
type statusReport struct {
	LedgerTotal int64          `json:"ledger_total"`
	StoreTotals map[string]int `json:"store_totals"`
	Products    int            `json:"products"`
	Quarantined int            `json:"quarantined"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print ledger and store counts",
		RunE:  runStatusCommand,
	}
}

func runStatusCommand(cmd *cobra.Command, _ []string) error {
	instance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	total, err := instance.Ledger().Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("count ledger: %w", err)
	}

	report := statusReport{
		LedgerTotal: total,
		StoreTotals: instance.Sink().Totals(),
		Products:    instance.Sink().ProductCount(),
		Quarantined: instance.Sink().QuarantineCount(),
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
