package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carteira/internal/reconcile"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare wallet balances with their executed transactions",
		Long: `Recomputes every wallet balance from its executed transactions and transfers
and reports the wallets whose stored balance differs.

With --fix each drift is corrected by a balance adjustment, recorded in the outbox
like any other ledger change.`,
		Args: cobra.NoArgs,
		RunE: runReconcile,
	}
	cmd.Flags().Bool("fix", false, "adjust drifting balances to match the ledger")
	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	fix, _ := cmd.Flags().GetBool("fix")

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	r := reconcile.New(s.store.Store, s.ledger, s.logger)
	var report reconcile.Report
	if fix {
		report, err = r.Fix(cmd.Context())
	} else {
		report, err = r.Check(cmd.Context())
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checked %d wallets, %d drifting\n", report.Checked, len(report.Drifts))
	for _, d := range report.Drifts {
		fmt.Fprintf(out, "  %s (%s): stored %s, ledger %s, delta %s\n",
			d.Name, d.WalletID, d.Stored, d.Expected, d.Delta())
	}
	if fix {
		fmt.Fprintf(out, "Fixed %d wallets\n", report.Fixed)
	}
	if !fix && len(report.Drifts) > 0 {
		return fmt.Errorf("%d wallets drift from their ledger", len(report.Drifts))
	}
	return nil
}
